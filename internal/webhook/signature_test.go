package webhook

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestSign(t *testing.T) {
	payload := []byte(`{"type":"job.completed","data":{}}`)
	ts := time.Unix(1234567890, 0)

	sig := Sign(payload, "secret", ts)
	if len(sig) != 64 {
		t.Errorf("Sign() len = %d, want 64 hex chars", len(sig))
	}
	if sig != Sign(payload, "secret", ts) {
		t.Error("Sign() should be deterministic")
	}
	if sig == Sign(payload, "other", ts) {
		t.Error("Sign() should vary with secret")
	}
	if sig == Sign(payload, "secret", ts.Add(time.Second)) {
		t.Error("Sign() should vary with timestamp")
	}
}

func TestSignatureHeader(t *testing.T) {
	header := SignatureHeader([]byte("{}"), "secret", time.Unix(1234567890, 0))
	if !strings.HasPrefix(header, "t=1234567890,v1=") {
		t.Errorf("SignatureHeader() = %q", header)
	}
}

func TestVerify(t *testing.T) {
	payload := []byte(`{"type":"job.failed"}`)
	now := time.Unix(1700000000, 0)
	valid := SignatureHeader(payload, "secret", now)

	tests := []struct {
		name    string
		header  string
		payload []byte
		secret  string
		now     time.Time
		wantErr error
	}{
		{"valid", valid, payload, "secret", now.Add(time.Minute), nil},
		{"wrong secret", valid, payload, "other", now, ErrInvalidSignature},
		{"tampered payload", valid, []byte(`{"type":"job.completed"}`), "secret", now, ErrInvalidSignature},
		{"stale", valid, payload, "secret", now.Add(10 * time.Minute), ErrStaleSignature},
		{"from the future", valid, payload, "secret", now.Add(-10 * time.Minute), ErrStaleSignature},
		{"missing v1", "t=1700000000", payload, "secret", now, ErrMissingSignature},
		{"missing timestamp", "v1=abc", payload, "secret", now, ErrMissingSignature},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Verify(tt.header, tt.payload, tt.secret, 5*time.Minute, tt.now)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Verify() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestVerify_BadTimestamp(t *testing.T) {
	if err := Verify("t=soon,v1=abc", nil, "secret", time.Minute, time.Now()); err == nil {
		t.Error("Verify() should reject a non-numeric timestamp")
	}
}
