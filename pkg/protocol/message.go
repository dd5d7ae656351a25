// Package protocol implements the arena wire codec: a JSON envelope
// {"type": ..., "payload": ...} carrying one of a fixed set of payloads.
package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// MessageType is the envelope tag. It is the sole dispatch key.
type MessageType string

const (
	MessageTypePosition    MessageType = "position"
	MessageTypeChat        MessageType = "chat"
	MessageTypeExit        MessageType = "exit"
	MessageTypeWorldState  MessageType = "world_state"
	MessageTypePlayerEvent MessageType = "player_event"
)

// String returns the tag as it appears on the wire.
func (mt MessageType) String() string {
	return string(mt)
}

// Known reports whether the tag is part of the protocol.
func (mt MessageType) Known() bool {
	switch mt {
	case MessageTypePosition, MessageTypeChat, MessageTypeExit,
		MessageTypeWorldState, MessageTypePlayerEvent:
		return true
	default:
		return false
	}
}

// Codec errors.
var (
	ErrMalformedEnvelope   = errors.New("protocol: malformed envelope")
	ErrUnknownTag          = fmt.Errorf("%w: unknown type tag", ErrMalformedEnvelope)
	ErrPayloadTypeMismatch = errors.New("protocol: payload type mismatch")
)

// Payload is implemented by every message body. Tag ties a payload shape
// to its envelope tag.
type Payload interface {
	Tag() MessageType
}

// Envelope is the outer wrapper around every message.
type Envelope struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// NewEnvelope wraps p in an envelope tagged with p.Tag().
func NewEnvelope(p Payload) (Envelope, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return Envelope{}, fmt.Errorf("failed to encode %s payload: %w", p.Tag(), err)
	}
	return Envelope{Type: p.Tag(), Payload: data}, nil
}

// Encode encodes the envelope into its JSON wire form. The output never
// contains a NUL byte: encoding/json escapes control characters in strings.
func (e Envelope) Encode() ([]byte, error) {
	payload := e.Payload
	if len(payload) == 0 {
		payload = json.RawMessage("{}")
	}
	data, err := json.Marshal(Envelope{Type: e.Type, Payload: payload})
	if err != nil {
		return nil, fmt.Errorf("failed to encode message: %w", err)
	}
	return data, nil
}

// Decode decodes one envelope. Unknown tags yield ErrUnknownTag, anything
// else that is not an envelope yields ErrMalformedEnvelope.
func Decode(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	if env.Type == "" {
		return Envelope{}, fmt.Errorf("%w: missing type", ErrMalformedEnvelope)
	}
	if !env.Type.Known() {
		return Envelope{}, fmt.Errorf("%w %q", ErrUnknownTag, env.Type)
	}
	return env, nil
}

// DecodePayload decodes the envelope payload into T. It fails with
// ErrPayloadTypeMismatch when T belongs to another tag or the payload does
// not fit T. Unknown payload fields are ignored.
func DecodePayload[T Payload](env Envelope) (T, error) {
	var v T
	if want := v.Tag(); want != env.Type {
		return v, fmt.Errorf("%w: %s payload in %s envelope", ErrPayloadTypeMismatch, want, env.Type)
	}
	raw := bytes.TrimSpace(env.Payload)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return v, fmt.Errorf("%w: empty %s payload", ErrPayloadTypeMismatch, env.Type)
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, fmt.Errorf("%w: %v", ErrPayloadTypeMismatch, err)
	}
	return v, nil
}
