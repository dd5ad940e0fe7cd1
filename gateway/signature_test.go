package gateway

import (
	"errors"
	"testing"
	"time"
)

func TestVerifySignature_RoundTrip(t *testing.T) {
	payload := []byte(`{"id":"evt_1","type":"checkout.session.completed"}`)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	header := Sign(payload, "whsec_test", now)

	if err := VerifySignature(payload, header, "whsec_test", now); err != nil {
		t.Errorf("Expected valid signature, got %v", err)
	}
}

func TestVerifySignature_TamperedPayload(t *testing.T) {
	payload := []byte(`{"id":"evt_1"}`)
	now := time.Now()
	header := Sign(payload, "whsec_test", now)

	tampered := []byte(`{"id":"evt_2"}`)
	if err := VerifySignature(tampered, header, "whsec_test", now); !errors.Is(err, ErrInvalidSignature) {
		t.Errorf("Expected ErrInvalidSignature, got %v", err)
	}
}

func TestVerifySignature_WrongSecret(t *testing.T) {
	payload := []byte(`{"id":"evt_1"}`)
	now := time.Now()
	header := Sign(payload, "whsec_test", now)

	if err := VerifySignature(payload, header, "whsec_other", now); !errors.Is(err, ErrInvalidSignature) {
		t.Errorf("Expected ErrInvalidSignature, got %v", err)
	}
}

func TestVerifySignature_StaleTimestamp(t *testing.T) {
	payload := []byte(`{"id":"evt_1"}`)
	issued := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	header := Sign(payload, "whsec_test", issued)

	// Delivered 6 minutes later, outside the 5 minute tolerance.
	if err := VerifySignature(payload, header, "whsec_test", issued.Add(6*time.Minute)); !errors.Is(err, ErrStaleSignature) {
		t.Errorf("Expected ErrStaleSignature, got %v", err)
	}
}

func TestVerifySignature_MalformedHeader(t *testing.T) {
	payload := []byte(`{"id":"evt_1"}`)
	for _, header := range []string{"", "t=abc,v1=deadbeef", "v1=deadbeef", "t=1700000000"} {
		if err := VerifySignature(payload, header, "whsec_test", time.Now()); !errors.Is(err, ErrInvalidSignature) {
			t.Errorf("Header %q: expected ErrInvalidSignature, got %v", header, err)
		}
	}
}

func TestParseEvent(t *testing.T) {
	payload := []byte(`{
		"id": "evt_42",
		"type": "checkout.session.completed",
		"data": {"object": {
			"id": "cs_test_123",
			"metadata": {"order_reference": "ORD-20250601-ABCD1234"},
			"expires_at": 1748779200
		}}
	}`)

	evt, err := ParseEvent(payload)
	if err != nil {
		t.Fatalf("Failed to parse event: %v", err)
	}
	if evt.ID != "evt_42" {
		t.Errorf("Expected event id evt_42, got %s", evt.ID)
	}
	if evt.Type != EventSessionCompleted {
		t.Errorf("Expected type %s, got %s", EventSessionCompleted, evt.Type)
	}
	if evt.SessionID != "cs_test_123" {
		t.Errorf("Expected session cs_test_123, got %s", evt.SessionID)
	}
	if evt.OrderReference != "ORD-20250601-ABCD1234" {
		t.Errorf("Expected order reference ORD-20250601-ABCD1234, got %s", evt.OrderReference)
	}
	if evt.ExpiresAt == nil {
		t.Error("Expected expires_at to be set")
	}
}

func TestParseEvent_MissingID(t *testing.T) {
	if _, err := ParseEvent([]byte(`{"type":"payment.succeeded"}`)); err == nil {
		t.Error("Expected error for event without id")
	}
}

func TestParseEvent_InvalidJSON(t *testing.T) {
	if _, err := ParseEvent([]byte(`not json`)); err == nil {
		t.Error("Expected error for invalid JSON")
	}
}
