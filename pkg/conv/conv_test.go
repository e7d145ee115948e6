package conv

import (
	"testing"
	"time"
)

func TestConfigGetters(t *testing.T) {
	m := map[string]any{
		"name":    "sample",
		"size":    500,
		"json":    float64(20),
		"weight":  0,
		"ratio":   0.25,
		"timeout": "1500ms",
		"seconds": 2,
		"bad":     []any{1},
	}

	if got := ConfigGet(m, "name", ""); got != "sample" {
		t.Errorf("ConfigGet(name) = %q", got)
	}
	if got := ConfigGet(m, "size", "x"); got != "x" {
		t.Errorf("ConfigGet type mismatch should fall back, got %q", got)
	}
	if got := ConfigGetInt64(m, "size", 1); got != 500 {
		t.Errorf("ConfigGetInt64(size) = %d", got)
	}
	if got := ConfigGetInt64(m, "json", 1); got != 20 {
		t.Errorf("ConfigGetInt64(json) = %d", got)
	}
	if got := ConfigGetInt64(m, "missing", 7); got != 7 {
		t.Errorf("ConfigGetInt64(missing) = %d", got)
	}
	if got := ConfigGetFloat64(m, "weight", 0.1); got != 0 {
		t.Errorf("ConfigGetFloat64(weight) = %v, want explicit 0", got)
	}
	if got := ConfigGetFloat64(m, "ratio", 0); got != 0.25 {
		t.Errorf("ConfigGetFloat64(ratio) = %v", got)
	}
	if got := ConfigGetFloat64(m, "bad", 1.5); got != 1.5 {
		t.Errorf("ConfigGetFloat64(bad) = %v", got)
	}
	if got := ConfigGetDuration(m, "timeout", 0); got != 1500*time.Millisecond {
		t.Errorf("ConfigGetDuration(timeout) = %v", got)
	}
	if got := ConfigGetDuration(m, "seconds", 0); got != 2*time.Second {
		t.Errorf("ConfigGetDuration(seconds) = %v", got)
	}
	if got := ConfigGet[string](nil, "name", "d"); got != "d" {
		t.Errorf("nil map should fall back, got %q", got)
	}
}
