package risk

import (
	"encoding/json"
	"fmt"
	"math"
)

// Status is the classification band of a health factor.
type Status int

const (
	StatusSafe Status = iota
	StatusWarning
	StatusDanger
	StatusLiquidatable
)

func (s Status) String() string {
	switch s {
	case StatusSafe:
		return "safe"
	case StatusWarning:
		return "warning"
	case StatusDanger:
		return "danger"
	case StatusLiquidatable:
		return "liquidatable"
	default:
		return "unknown"
	}
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Status) UnmarshalText(text []byte) error {
	switch string(text) {
	case "safe":
		*s = StatusSafe
	case "warning":
		*s = StatusWarning
	case "danger":
		*s = StatusDanger
	case "liquidatable":
		*s = StatusLiquidatable
	default:
		return fmt.Errorf("unknown risk status %q", text)
	}
	return nil
}

// Ratio is a float64 that survives JSON encoding when infinite.
// encoding/json rejects ±Inf, but a debt-free health factor IS +Inf, so the
// wire format follows the JavaScript convention and encodes it as the string
// "Infinity".
type Ratio float64

// IsInf reports whether the ratio is +Inf.
func (r Ratio) IsInf() bool {
	return math.IsInf(float64(r), 1)
}

func (r Ratio) MarshalJSON() ([]byte, error) {
	f := float64(r)
	if math.IsInf(f, 1) {
		return []byte(`"Infinity"`), nil
	}
	if math.IsInf(f, -1) {
		return []byte(`"-Infinity"`), nil
	}
	return json.Marshal(f)
}

func (r *Ratio) UnmarshalJSON(data []byte) error {
	switch string(data) {
	case `"Infinity"`:
		*r = Ratio(math.Inf(1))
		return nil
	case `"-Infinity"`:
		*r = Ratio(math.Inf(-1))
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("ratio: %w", err)
	}
	*r = Ratio(f)
	return nil
}
