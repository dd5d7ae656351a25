package protocol

// Vector3 is a point in world space.
type Vector3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// PositionUpdate is streamed by the client several times a second.
type PositionUpdate struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

func (PositionUpdate) Tag() MessageType { return MessageTypePosition }

// ChatMessage travels in both directions.
type ChatMessage struct {
	ID      PlayerID `json:"id"`
	Message string   `json:"message"`
}

func (ChatMessage) Tag() MessageType { return MessageTypeChat }

// PlayerEvent notifies about something that happened to a player, such as
// "joined" or "left".
type PlayerEvent struct {
	ID    PlayerID `json:"id"`
	Event string   `json:"event"`
}

func (PlayerEvent) Tag() MessageType { return MessageTypePlayerEvent }

// ExitNotice carries the final local player state when a session ends.
type ExitNotice struct {
	ID PlayerID `json:"id,omitempty"`
	X  float64  `json:"x"`
	Y  float64  `json:"y"`
	Z  float64  `json:"z"`
}

func (ExitNotice) Tag() MessageType { return MessageTypeExit }

// PlayerPosition is one entry of a world snapshot.
type PlayerPosition struct {
	ID       PlayerID `json:"id"`
	Position Vector3  `json:"position"`
}

// Weather is auxiliary environment data attached to a snapshot.
type Weather struct {
	Condition   string  `json:"condition"`
	Temperature float64 `json:"temperature"`
}

// WorldSnapshot is the authoritative view of every player. Receivers replace
// their previous view with it.
type WorldSnapshot struct {
	Players   []PlayerPosition `json:"players"`
	Weather   *Weather         `json:"weather,omitempty"`
	Timestamp Timestamp        `json:"timestamp"`
}

func (WorldSnapshot) Tag() MessageType { return MessageTypeWorldState }
