package broker

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	json "github.com/goccy/go-json"
)

// Shares is a share count. The server may send it as an integer, a float
// such as 500.0, or a numeric string.
type Shares int

// Count is a non-share integer quantity (transaction counts, window lengths)
// decoded with the same coercion as Shares.
type Count int

// UnmarshalJSON coerces numbers and numeric strings.
func (s *Shares) UnmarshalJSON(b []byte) error {
	v, err := coerceInt(b)
	if err != nil {
		return fmt.Errorf("shares: %w", err)
	}
	*s = Shares(v)
	return nil
}

// UnmarshalJSON coerces numbers and numeric strings.
func (c *Count) UnmarshalJSON(b []byte) error {
	v, err := coerceInt(b)
	if err != nil {
		return fmt.Errorf("count: %w", err)
	}
	*c = Count(v)
	return nil
}

func coerceInt(b []byte) (int, error) {
	raw := strings.TrimSpace(string(b))
	if raw == "null" || raw == "" {
		return 0, nil
	}
	raw = strings.TrimSpace(strings.Trim(raw, `"`))
	if raw == "" {
		return 0, nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("non-finite value %q", raw)
	}
	return int(math.Round(f)), nil
}

// ID is an identifier the server may send as a string or a number.
type ID string

// UnmarshalJSON accepts strings and numbers.
func (id *ID) UnmarshalJSON(b []byte) error {
	raw := strings.TrimSpace(string(b))
	if raw == "null" {
		*id = ""
		return nil
	}
	if strings.HasPrefix(raw, `"`) {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	*id = ID(raw)
	return nil
}

// toFloat64 converts loosely typed JSON values to float64, returning 0 for
// anything that is not numeric.
func toFloat64(v any) float64 {
	switch t := v.(type) {
	case nil:
		return 0
	case float64:
		return t
	case float32:
		return float64(t)
	case int:
		return float64(t)
	case int64:
		return float64(t)
	case json.Number:
		f, _ := t.Float64()
		return f
	case string:
		f, _ := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f
	default:
		return 0
	}
}
