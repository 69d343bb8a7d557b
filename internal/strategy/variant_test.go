package strategy

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestNewVariant(t *testing.T) {
	reg := NewRegistry()
	reg.Register("mock", func() Strategy { return &mockStrategy{name: "mock"} })

	params := map[string]float64{"period": 7.6, "threshold": 1.5}
	v, err := NewVariant(reg, "mock", "evolved_3", params)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if v.Name() != "evolved_3" {
		t.Errorf("expected variant name, got %s", v.Name())
	}
	if v.Base() != "mock" {
		t.Errorf("expected base mock, got %s", v.Base())
	}
	if !strings.Contains(v.Description(), "period=7.600") {
		t.Errorf("unexpected description: %s", v.Description())
	}

	// the inner strategy sees the gene as params
	inner := v.Strategy.(*mockStrategy)
	if Int(inner.params, "period", 0) != 8 {
		t.Errorf("expected rounded period 8, got %d", Int(inner.params, "period", 0))
	}

	// params are copied
	params["period"] = 100
	if v.Params()["period"] != 7.6 {
		t.Error("variant params should not alias caller map")
	}
}

func TestNewVariant_UnknownBase(t *testing.T) {
	if _, err := NewVariant(NewRegistry(), "nope", "x", nil); err == nil {
		t.Error("expected error for unknown base")
	}
}

func TestParams(t *testing.T) {
	params := map[string]any{
		"f":   1.5,
		"i":   3,
		"n":   json.Number("2.5"),
		"bad": "text",
		"i64": int64(9),
		"f32": float32(0.5),
	}

	tests := []struct {
		key  string
		want float64
	}{
		{"f", 1.5},
		{"i", 3},
		{"n", 2.5},
		{"bad", -1},
		{"missing", -1},
		{"i64", 9},
		{"f32", 0.5},
	}

	for _, tt := range tests {
		if got := Float(params, tt.key, -1); got != tt.want {
			t.Errorf("Float(%s) = %v, want %v", tt.key, got, tt.want)
		}
	}

	if Int(params, "missing", 4) != 4 {
		t.Error("expected default for missing int")
	}
}
