package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// APITimeLayout is the timestamp format used by the location API.
const APITimeLayout = "2006-01-02T15:04:05.000Z"

// APITime decodes API timestamps. RFC 3339 is accepted as well; null or an
// empty string leaves the zero time.
type APITime struct {
	time.Time
}

func (t *APITime) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("invalid timestamp %s: %w", data, err)
	}
	if s == "" {
		return nil
	}
	parsed, err := time.Parse(APITimeLayout, s)
	if err != nil {
		if parsed, err = time.Parse(time.RFC3339Nano, s); err != nil {
			return fmt.Errorf("invalid timestamp %q: %w", s, err)
		}
	}
	t.Time = parsed
	return nil
}

func (t APITime) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.UTC().Format(APITimeLayout))
}
