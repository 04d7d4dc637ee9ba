package types

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Code is an opaque backend identifier. The backend emits some codes as JSON
// numbers and others as strings; both decode to the same textual form.
type Code string

func (c Code) String() string {
	return string(c)
}

func (c Code) IsZero() bool {
	return c == ""
}

func (c Code) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(c))
}

func (c *Code) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*c = ""
		return nil
	}
	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return err
		}
		*c = Code(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(trimmed, &n); err != nil {
		return fmt.Errorf("code must be a string or number: %w", err)
	}
	*c = Code(n.String())
	return nil
}
