package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/timestamppb"
)

// Timestamp is the snapshot time exactly as the server sent it. Servers emit
// either RFC 3339 with a zone or zone-less ISO-8601, so parsing is deferred
// to Time.
type Timestamp string

// zone-less layouts accepted after the RFC 3339 attempt fails.
var localLayouts = []string{
	"2006-01-02T15:04:05.9999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// NewTimestamp formats t the way the sandbox server sends it.
func NewTimestamp(t time.Time) Timestamp {
	data, err := protojson.Marshal(timestamppb.New(t))
	if err != nil {
		return Timestamp(t.UTC().Format(time.RFC3339Nano))
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return Timestamp(t.UTC().Format(time.RFC3339Nano))
	}
	return Timestamp(s)
}

// Time parses the timestamp. Zone-less values are read as UTC. Numbers
// are epoch seconds, or epoch milliseconds when their magnitude is at
// least 1e11, and may carry a fraction.
func (ts Timestamp) Time() (time.Time, error) {
	if ts == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	if isJSONNumber(string(ts)) {
		return epochTime(string(ts))
	}
	quoted, err := json.Marshal(string(ts))
	if err != nil {
		return time.Time{}, err
	}
	var pb timestamppb.Timestamp
	if err := protojson.Unmarshal(quoted, &pb); err == nil {
		return pb.AsTime(), nil
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, string(ts), time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", string(ts))
}

// epochMillisThreshold separates seconds from milliseconds: 1e11 seconds is
// past the year 5000, 1e11 milliseconds is 1973.
const epochMillisThreshold = 1e11

func epochTime(s string) (time.Time, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsInf(v, 0) {
		return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
	}
	unit := float64(time.Second)
	if math.Abs(v) >= epochMillisThreshold {
		unit = float64(time.Millisecond)
	}
	whole, frac := math.Modf(v)
	if math.Abs(whole*unit) > math.MaxInt64 {
		return time.Time{}, fmt.Errorf("timestamp %q out of range", s)
	}
	return time.Unix(0, 0).Add(time.Duration(whole) * time.Duration(unit)).
		Add(time.Duration(math.Round(frac * unit))).UTC(), nil
}

// UnmarshalJSON keeps the value verbatim: a JSON string as its text, a
// number as its literal. Any other JSON value is kept as raw text for Time
// to reject, so an odd timestamp never fails the whole snapshot.
func (ts *Timestamp) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if string(data) == "null" {
		*ts = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*ts = Timestamp(s)
		return nil
	}
	*ts = Timestamp(data)
	return nil
}

// MarshalJSON writes numeric timestamps back as numbers and everything
// else as a string.
func (ts Timestamp) MarshalJSON() ([]byte, error) {
	if isJSONNumber(string(ts)) {
		return []byte(ts), nil
	}
	return json.Marshal(string(ts))
}
