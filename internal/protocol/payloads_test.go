package protocol

import (
	"encoding/json"
	"testing"
)

func TestDecodeAndValidate_Ping(t *testing.T) {
	var req PingRequest
	raw := json.RawMessage(`{"version":"v1","ts":1700000000000}`)

	if err := DecodeAndValidate(raw, &req); err != nil {
		t.Fatalf("DecodeAndValidate failed: %v", err)
	}
	if req.TS != 1700000000000 {
		t.Errorf("Expected ts preserved, got %d", req.TS)
	}
}

func TestDecodeAndValidate_MissingVersion(t *testing.T) {
	var req PingRequest
	raw := json.RawMessage(`{"ts":1700000000000}`)

	if err := DecodeAndValidate(raw, &req); err == nil {
		t.Error("Expected error for missing version")
	}
}

func TestDecodeAndValidate_UnknownVersion(t *testing.T) {
	var req PingRequest
	raw := json.RawMessage(`{"version":"v2","ts":1700000000000}`)

	if err := DecodeAndValidate(raw, &req); err == nil {
		t.Error("Expected error for unknown protocol version")
	}
}

func TestDecodeAndValidate_MissingPayload(t *testing.T) {
	var req StatsRequest

	if err := DecodeAndValidate(nil, &req); err == nil {
		t.Error("Expected error for missing payload")
	}
}

func TestDecodeAndValidate_MalformedPayload(t *testing.T) {
	var req StatsRequest

	if err := DecodeAndValidate(json.RawMessage(`{"version":`), &req); err == nil {
		t.Error("Expected error for malformed payload")
	}
}

func TestStatsSubscribe_IntervalBounds(t *testing.T) {
	cases := []struct {
		name    string
		payload string
		wantErr bool
	}{
		{"default", `{"version":"v1"}`, false},
		{"explicit", `{"version":"v1","intervalMs":50}`, false},
		{"minimum", `{"version":"v1","intervalMs":1}`, false},
		{"maximum", `{"version":"v1","intervalMs":60000}`, false},
		{"too small", `{"version":"v1","intervalMs":0}`, true},
		{"too large", `{"version":"v1","intervalMs":60001}`, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var req StatsSubscribeRequest
			err := DecodeAndValidate(json.RawMessage(tc.payload), &req)
			if tc.wantErr && err == nil {
				t.Errorf("Expected error for payload %s", tc.payload)
			}
			if !tc.wantErr && err != nil {
				t.Errorf("Unexpected error for payload %s: %v", tc.payload, err)
			}
		})
	}
}

func TestStatsSubscribe_Interval(t *testing.T) {
	var req StatsSubscribeRequest
	if req.Interval() != DefaultStatsIntervalMs {
		t.Errorf("Expected default interval %d, got %d", DefaultStatsIntervalMs, req.Interval())
	}

	ms := int64(250)
	req.IntervalMs = &ms
	if req.Interval() != 250 {
		t.Errorf("Expected explicit interval 250, got %d", req.Interval())
	}
}

func TestDeprecatedEvents_CoverDomainCRUD(t *testing.T) {
	seen := make(map[string]bool, len(DeprecatedEvents))
	for _, ev := range DeprecatedEvents {
		if seen[ev] {
			t.Errorf("Duplicate deprecated event %s", ev)
		}
		seen[ev] = true
	}
	for _, ev := range []string{"projects:create", "messages:create", "uploads:sign"} {
		if !seen[ev] {
			t.Errorf("Expected %s in deprecated events", ev)
		}
	}
}
