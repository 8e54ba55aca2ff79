package webhook

import (
	"encoding/json"
	"testing"
)

func TestPayload_MarshalJSON_PreservesInsertionOrder(t *testing.T) {
	p := NewPayload("sensor.threshold_exceeded", KV{Key: "rule", Value: "high-temp"}, KV{Key: "value", Value: 42.5})

	raw, err := p.Bytes()
	if err != nil {
		t.Fatalf("Bytes returned error: %v", err)
	}

	want := `{"type":"sensor.threshold_exceeded","time":`
	if string(raw[:len(want)]) != want {
		t.Fatalf("expected payload to start with %q, got %q", want, string(raw))
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("payload did not round-trip through json.Unmarshal: %v", err)
	}
	if decoded["rule"] != "high-temp" {
		t.Errorf("rule = %v, want high-temp", decoded["rule"])
	}
	if decoded["value"] != 42.5 {
		t.Errorf("value = %v, want 42.5", decoded["value"])
	}
}

func TestPayload_SetOverwritesWithoutReordering(t *testing.T) {
	p := NewPayload("sensor.threshold_exceeded", KV{Key: "value", Value: 1})
	p.set("value", 2)

	raw, err := p.Bytes()
	if err != nil {
		t.Fatalf("Bytes returned error: %v", err)
	}
	var decoded map[string]interface{}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if decoded["value"] != float64(2) {
		t.Errorf("value = %v, want 2 (overwritten, not appended)", decoded["value"])
	}
}

func TestSign_IsDeterministicAndSecretSensitive(t *testing.T) {
	body := []byte(`{"type":"test"}`)
	sigA := Sign("secret-a", 1700000000, body)
	sigAAgain := Sign("secret-a", 1700000000, body)
	sigB := Sign("secret-b", 1700000000, body)

	if sigA != sigAAgain {
		t.Error("Sign should be deterministic for identical inputs")
	}
	if sigA == sigB {
		t.Error("Sign should differ when the secret differs")
	}
}

func TestTimestampHeader(t *testing.T) {
	if got := TimestampHeader(1700000000); got != "1700000000" {
		t.Errorf("TimestampHeader(1700000000) = %q, want %q", got, "1700000000")
	}
}
