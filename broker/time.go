package broker

import (
	"fmt"
	"strings"
	"time"

	json "github.com/goccy/go-json"
)

const (
	// TimeLayout is the canonical wire form of request timestamps.
	TimeLayout = "2006-01-02 15:04:05"
	// DateLayout is used for date-only parameters.
	DateLayout = "2006-01-02"

	fracLayout = "2006-01-02 15:04:05.000000"
)

var parseLayouts = []string{
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	DateLayout,
}

// Time is a naive local date-time as exchanged with the server. Zones are not
// modeled: values are read and written in time.Local.
type Time struct {
	time.Time
}

// NewTime wraps t.
func NewTime(t time.Time) Time {
	return Time{Time: t}
}

// ParseTime parses the server's date-time forms into a local wall-clock time.
// Values carrying an explicit offset are converted to time.Local.
func ParseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range parseLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, nil
		}
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.In(time.Local), nil
	}
	return time.Time{}, fmt.Errorf("unrecognized time %q", s)
}

// FormatTime renders t as YYYY-MM-DD HH:MM:SS, with six fractional digits
// when t has a sub-second part. The layout follows the value, not the text it
// was parsed from: "10:04:00.000000" formats as "10:04:00". The instant
// round-trips, the spelling does not.
func FormatTime(t time.Time) string {
	if t.Nanosecond() == 0 {
		return t.Format(TimeLayout)
	}
	return t.Format(fracLayout)
}

// FormatOrderTime renders an order timestamp in the canonical request form.
func FormatOrderTime(t time.Time) string {
	return t.Format(TimeLayout)
}

// FormatDate renders the date part of t.
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

func (t Time) String() string {
	if t.IsZero() {
		return ""
	}
	return FormatTime(t.Time)
}

// MarshalJSON writes the canonical form, or null for the zero value.
func (t Time) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(FormatTime(t.Time))
}

// UnmarshalJSON accepts null, "" and any form understood by ParseTime.
func (t *Time) UnmarshalJSON(b []byte) error {
	raw := strings.TrimSpace(string(b))
	if raw == "null" {
		t.Time = time.Time{}
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("time must be a string: %w", err)
	}
	if strings.TrimSpace(s) == "" {
		t.Time = time.Time{}
		return nil
	}
	parsed, err := ParseTime(s)
	if err != nil {
		return err
	}
	t.Time = parsed
	return nil
}
