package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// PlayerID identifies a player. Peers send ids either as JSON numbers or as
// strings; both decode into the same textual form. Ids that are JSON
// numbers are encoded back as numbers.
type PlayerID string

// String returns the id text.
func (id PlayerID) String() string {
	return string(id)
}

// MarshalJSON implements json.Marshaler. Ids that are valid JSON numbers
// are written as numbers.
func (id PlayerID) MarshalJSON() ([]byte, error) {
	if isJSONNumber(string(id)) {
		return []byte(id), nil
	}
	return json.Marshal(string(id))
}

// isJSONNumber reports whether s is a bare JSON number literal.
func isJSONNumber(s string) bool {
	if s == "" || (s[0] != '-' && (s[0] < '0' || s[0] > '9')) {
		return false
	}
	var n json.Number
	return json.Unmarshal([]byte(s), &n) == nil && n.String() == s
}

// UnmarshalJSON implements json.Unmarshaler.
func (id *PlayerID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = PlayerID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("player id must be a string or number: %w", err)
	}
	*id = PlayerID(n.String())
	return nil
}
