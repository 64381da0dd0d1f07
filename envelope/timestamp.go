package envelope

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// referenceEpoch is the zero point of numeric timestamps sent by Foundation
// clients (seconds since 2001-01-01T00:00:00Z).
var referenceEpoch = time.Date(2001, time.January, 1, 0, 0, 0, 0, time.UTC)

// maxOffsetSeconds is the largest numeric timestamp a time.Duration can hold.
const maxOffsetSeconds = float64(math.MaxInt64 / int64(time.Second))

// Timestamp is a dispatch date. It encodes as RFC 3339 with nanoseconds and
// decodes either that form or a number of seconds since the reference epoch.
type Timestamp struct {
	time.Time
}

// Now returns the current UTC time as a Timestamp.
func Now() Timestamp {
	return Timestamp{Time: time.Now().UTC()}
}

// MarshalJSON implements json.Marshaler.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.UTC().Format(time.RFC3339Nano))
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*t = Timestamp{}
		return nil
	}

	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if s == "" {
			*t = Timestamp{}
			return nil
		}
		parsed, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return fmt.Errorf("dispatchDate: %w", err)
		}
		t.Time = parsed.UTC()
		return nil
	}

	var secs float64
	if err := json.Unmarshal(data, &secs); err != nil {
		return fmt.Errorf("dispatchDate: %w", err)
	}
	if math.IsNaN(secs) || math.IsInf(secs, 0) {
		return fmt.Errorf("dispatchDate: non-finite value")
	}
	if math.Abs(secs) > maxOffsetSeconds {
		return fmt.Errorf("dispatchDate: %g seconds is out of range", secs)
	}
	whole, frac := math.Modf(secs)
	t.Time = referenceEpoch.Add(time.Duration(whole) * time.Second).
		Add(time.Duration(frac * float64(time.Second)))
	return nil
}
