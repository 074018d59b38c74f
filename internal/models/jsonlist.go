package models

import (
	"database/sql/driver"
	"fmt"

	"github.com/goccy/go-json"
)

// IntList is a list of integers stored as a JSON array in a text column.
// A nil list is stored as NULL so merge-preserving upserts can keep the
// previous value. Malformed stored values decode to an empty list.
type IntList []int

// Value implements driver.Valuer.
func (l IntList) Value() (driver.Value, error) {
	if l == nil {
		return nil, nil
	}
	b, err := json.Marshal([]int(l))
	if err != nil {
		return nil, fmt.Errorf("encoding int list: %w", err)
	}
	return string(b), nil
}

// Scan implements sql.Scanner.
func (l *IntList) Scan(value any) error {
	raw, ok := rawJSON(value)
	if !ok {
		*l = nil
		return nil
	}
	var out []int
	if err := json.Unmarshal(raw, &out); err != nil {
		*l = IntList{}
		return nil
	}
	*l = out
	return nil
}

// GormDataType stores the list as text.
func (IntList) GormDataType() string {
	return "text"
}

// StringList is a list of strings stored as a JSON array. Decoding is
// tolerant: a malformed array or non-string entries yield an empty list.
type StringList []string

// Value implements driver.Valuer.
func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return nil, nil
	}
	b, err := json.Marshal([]string(l))
	if err != nil {
		return nil, fmt.Errorf("encoding string list: %w", err)
	}
	return string(b), nil
}

// Scan implements sql.Scanner.
func (l *StringList) Scan(value any) error {
	raw, ok := rawJSON(value)
	if !ok {
		*l = nil
		return nil
	}
	var out []string
	if err := json.Unmarshal(raw, &out); err != nil {
		*l = StringList{}
		return nil
	}
	*l = out
	return nil
}

// GormDataType stores the list as text.
func (StringList) GormDataType() string {
	return "text"
}

func rawJSON(value any) ([]byte, bool) {
	switch v := value.(type) {
	case string:
		if v == "" {
			return nil, false
		}
		return []byte(v), true
	case []byte:
		if len(v) == 0 {
			return nil, false
		}
		return v, true
	default:
		return nil, false
	}
}
