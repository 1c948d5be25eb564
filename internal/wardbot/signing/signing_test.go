package signing

import (
	"testing"

	"github.com/google/uuid"
)

func TestCallbackRoundTrip(t *testing.T) {
	s := New("super-secret-key")
	id := uuid.New()
	groupID, userID := int64(42), int64(100)

	payload := s.CallbackPayload(groupID, userID, id)

	parsed, err := s.VerifyCallback(groupID, payload)
	if err != nil {
		t.Fatalf("VerifyCallback failed: %v", err)
	}
	if parsed.UserID != userID {
		t.Errorf("UserID = %d, want %d", parsed.UserID, userID)
	}
	if parsed.ID != id {
		t.Errorf("ID = %v, want %v", parsed.ID, id)
	}
}

func TestCallbackTokenLengths(t *testing.T) {
	s := New("super-secret-key")
	id := uuid.New()
	payload := s.CallbackPayload(1, 2, id)

	// "agree:{user_id}:{22-char token}:{11-char sig}"
	want := "agree:2:" + EncodeToken(id) + ":"
	if len(payload) < len(want) {
		t.Fatalf("payload too short: %q", payload)
	}
	if EncodeToken(id) == "" || len(EncodeToken(id)) != TokenLen {
		t.Fatalf("token length = %d, want %d", len(EncodeToken(id)), TokenLen)
	}
}

func TestCallbackWrongGroup(t *testing.T) {
	s := New("super-secret-key")
	id := uuid.New()
	payload := s.CallbackPayload(1, 100, id)

	if _, err := s.VerifyCallback(2, payload); err == nil {
		t.Fatal("expected verification failure for wrong group")
	}
}

func TestCallbackSignatureTamper(t *testing.T) {
	s := New("super-secret-key")
	id := uuid.New()
	payload := s.CallbackPayload(1, 100, id)

	tampered := []byte(payload)
	// Flip one bit in the last character (part of the signature).
	tampered[len(tampered)-1] ^= 0x01
	if _, err := s.VerifyCallback(1, string(tampered)); err == nil {
		t.Fatal("expected rejection of one-bit-tampered signature")
	}
}

func TestCallbackDifferentKeyRejected(t *testing.T) {
	s1 := New("key-one")
	s2 := New("key-two")
	id := uuid.New()
	payload := s1.CallbackPayload(1, 100, id)

	if _, err := s2.VerifyCallback(1, payload); err == nil {
		t.Fatal("expected rejection under a different key")
	}
}

func TestStartPayloadRoundTrip(t *testing.T) {
	s := New("super-secret-key")
	id := uuid.New()
	groupID, userID := int64(42), int64(100)

	payload := s.DeepLinkPayload(groupID, userID, id)

	gotID, err := ParseStartPayload(payload)
	if err != nil {
		t.Fatalf("ParseStartPayload failed: %v", err)
	}
	if gotID != id {
		t.Errorf("parsed id = %v, want %v", gotID, id)
	}

	parsed, err := s.VerifyStart(groupID, userID, payload)
	if err != nil {
		t.Fatalf("VerifyStart failed: %v", err)
	}
	if parsed.ID != id {
		t.Errorf("VerifyStart id = %v, want %v", parsed.ID, id)
	}
}

func TestStartPayloadTamperRejected(t *testing.T) {
	s := New("super-secret-key")
	id := uuid.New()
	payload := s.DeepLinkPayload(1, 100, id)

	tampered := []byte(payload)
	tampered[len(tampered)-1] ^= 0x01
	if _, err := s.VerifyStart(1, 100, string(tampered)); err == nil {
		t.Fatal("expected rejection of tampered deep-link signature")
	}
}

func TestMalformedCallbackRejected(t *testing.T) {
	s := New("k")
	cases := []string{
		"",
		"agree:",
		"not-a-callback",
		"agree:abc:tok:sig",
	}
	for _, c := range cases {
		if _, err := s.VerifyCallback(1, c); err == nil {
			t.Errorf("VerifyCallback(%q) should have failed", c)
		}
	}
}
