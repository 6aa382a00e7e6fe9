package backend

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// flexInt decodes sizes that APIs report either as a JSON number or as a
// quoted decimal string. Null and empty strings decode to zero.
type flexInt int64

// UnmarshalJSON implements json.Unmarshaler.
func (f *flexInt) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = 0
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if s == "" {
			*f = 0
			return nil
		}
		data = []byte(s)
	}
	n, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		return fmt.Errorf("invalid size %q: %w", data, err)
	}
	*f = flexInt(n)
	return nil
}
