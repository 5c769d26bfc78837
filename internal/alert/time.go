package alert

import (
	"encoding/json"
	"fmt"
	"time"
)

// wireTimeLayout is the timestamp format used on every external surface:
// broker payloads, history entries and the search index. Always UTC with
// milliseconds zero-padded to three digits.
const wireTimeLayout = "2006-01-02T15:04:05.000Z"

// Time is a time.Time that marshals to the wire timestamp format. Values
// are normalised to UTC and millisecond precision so they survive a wire
// round trip unchanged. Optional timestamps use *Time.
type Time struct {
	time.Time
}

// Now returns the current server time as a wire Time.
func Now() Time {
	return At(time.Now())
}

// At wraps t as a wire Time.
func At(t time.Time) Time {
	return Time{t.UTC().Truncate(time.Millisecond)}
}

// Add returns the Time shifted by d.
func (t Time) Add(d time.Duration) Time {
	return Time{t.Time.Add(d)}
}

func (t Time) MarshalJSON() ([]byte, error) {
	return []byte(`"` + t.UTC().Format(wireTimeLayout) + `"`), nil
}

// UnmarshalJSON accepts RFC 3339 timestamps with any fractional-second
// precision and truncates them to milliseconds.
func (t *Time) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("timestamp: %w", err)
	}
	parsed, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return fmt.Errorf("timestamp %q: %w", s, err)
	}
	*t = At(parsed)
	return nil
}

// String returns the wire representation.
func (t Time) String() string {
	return t.UTC().Format(wireTimeLayout)
}
