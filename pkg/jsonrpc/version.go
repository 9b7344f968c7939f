package jsonrpc

import (
	"encoding/json"
	"fmt"
)

// versionString is the only protocol version this package speaks.
const versionString = "2.0"

// Version marshals to the literal string "2.0" and refuses to unmarshal
// anything else. Embedding it in an envelope enforces the version check
// during decoding.
type Version struct{}

// MarshalJSON implements json.Marshaler.
func (Version) MarshalJSON() ([]byte, error) {
	return json.Marshal(versionString)
}

// UnmarshalJSON implements json.Unmarshaler.
func (*Version) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("invalid jsonrpc version: %w", err)
	}
	if s != versionString {
		return fmt.Errorf("unsupported jsonrpc version %q", s)
	}
	return nil
}
