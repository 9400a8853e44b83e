package domain

import (
	"testing"
)

func TestMetadataValueAndScan(t *testing.T) {
	m := Metadata{"topic": "billing", "attempts": float64(3)}

	v, err := m.Value()
	if err != nil {
		t.Fatalf("Value: %v", err)
	}

	var out Metadata
	if err := out.Scan(v); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if out["topic"] != "billing" || out["attempts"] != float64(3) {
		t.Errorf("round trip lost data: %+v", out)
	}
}

func TestMetadataNilValue(t *testing.T) {
	var m Metadata
	v, err := m.Value()
	if err != nil {
		t.Fatalf("Value: %v", err)
	}
	if v != nil {
		t.Errorf("nil metadata should store NULL, got %v", v)
	}
}

func TestMetadataScanSources(t *testing.T) {
	var m Metadata
	if err := m.Scan(nil); err != nil {
		t.Fatalf("Scan(nil): %v", err)
	}
	if m != nil {
		t.Errorf("expected nil map from NULL, got %v", m)
	}

	// Drivers hand back either []byte or string.
	if err := m.Scan(`{"k":"v"}`); err != nil {
		t.Fatalf("Scan(string): %v", err)
	}
	if m["k"] != "v" {
		t.Errorf("string scan lost data: %v", m)
	}

	if err := m.Scan(42); err == nil {
		t.Error("expected error for unsupported source type")
	}
}
