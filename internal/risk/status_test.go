package risk_test

import (
	"encoding/json"
	"math"
	"testing"

	"lendrisk/internal/risk"
)

func TestRatio_MarshalInfinity(t *testing.T) {
	data, err := json.Marshal(risk.Ratio(math.Inf(1)))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `"Infinity"` {
		t.Errorf("got %s, want \"Infinity\"", data)
	}

	var r risk.Ratio
	if err := json.Unmarshal(data, &r); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !r.IsInf() {
		t.Errorf("round-trip lost infinity: %v", r)
	}
}

func TestRatio_MarshalFinite(t *testing.T) {
	data, err := json.Marshal(risk.Ratio(1.5))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != "1.5" {
		t.Errorf("got %s, want 1.5", data)
	}
}

func TestStatus_TextRoundTrip(t *testing.T) {
	for _, s := range []risk.Status{risk.StatusSafe, risk.StatusWarning, risk.StatusDanger, risk.StatusLiquidatable} {
		text, err := s.MarshalText()
		if err != nil {
			t.Fatalf("marshal %v: %v", s, err)
		}
		var back risk.Status
		if err := back.UnmarshalText(text); err != nil {
			t.Fatalf("unmarshal %q: %v", text, err)
		}
		if back != s {
			t.Errorf("round trip %v: got %v", s, back)
		}
	}
}

func TestStatus_UnmarshalUnknown(t *testing.T) {
	var s risk.Status
	if err := s.UnmarshalText([]byte("melting")); err == nil {
		t.Error("expected error for unknown status")
	}
}
