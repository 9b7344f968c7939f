package jsonrpc

import (
	"encoding/json"
	"fmt"
	"strconv"
)

type idKind int

const (
	idNull idKind = iota
	idNumber
	idString
)

// ID is a JSON-RPC request correlator: a 64-bit integer, a string, or
// null. The zero value is the null ID, which is reserved for
// server-synthesized error responses; clients never send it.
//
// ID is comparable and usable as a map key.
type ID struct {
	kind idKind
	num  int64
	str  string
}

// NumberID returns an ID holding the given integer.
func NumberID(n int64) ID {
	return ID{kind: idNumber, num: n}
}

// StringID returns an ID holding the given string.
func StringID(s string) ID {
	return ID{kind: idString, str: s}
}

// IsNull reports whether the ID is the null ID.
func (id ID) IsNull() bool {
	return id.kind == idNull
}

// String renders the ID for logging.
func (id ID) String() string {
	switch id.kind {
	case idNumber:
		return strconv.FormatInt(id.num, 10)
	case idString:
		return strconv.Quote(id.str)
	default:
		return "null"
	}
}

// MarshalJSON implements json.Marshaler.
func (id ID) MarshalJSON() ([]byte, error) {
	switch id.kind {
	case idNumber:
		return strconv.AppendInt(nil, id.num, 10), nil
	case idString:
		return json.Marshal(id.str)
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON implements json.Unmarshaler.
func (id *ID) UnmarshalJSON(data []byte) error {
	switch {
	case len(data) == 0 || string(data) == "null":
		*id = ID{}
		return nil
	case data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = StringID(s)
		return nil
	default:
		n, err := strconv.ParseInt(string(data), 10, 64)
		if err != nil {
			return fmt.Errorf("invalid request id %s: %w", data, err)
		}
		*id = NumberID(n)
		return nil
	}
}
