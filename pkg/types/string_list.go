package types

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// StringList persists a list of strings (product image URLs) as JSONB.
type StringList []string

func (s StringList) Value() (driver.Value, error) {
	if s == nil {
		return "[]", nil
	}
	buf, err := json.Marshal([]string(s))
	if err != nil {
		return nil, err
	}
	return string(buf), nil
}

func (s *StringList) Scan(value interface{}) error {
	if value == nil {
		*s = nil
		return nil
	}
	var raw []byte
	switch v := value.(type) {
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return fmt.Errorf("string list: unsupported scan type %T", value)
	}
	var out []string
	if err := json.Unmarshal(raw, &out); err != nil {
		return err
	}
	*s = out
	return nil
}

// First returns the first entry or "".
func (s StringList) First() string {
	if len(s) == 0 {
		return ""
	}
	return s[0]
}
