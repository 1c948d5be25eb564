// Package signing implements the HMAC callback/deep-link signing scheme that
// binds an inline-button press or a /start deep link to a specific
// verification session, so a callback cannot be forged for a session that
// does not belong to the presenting user.
package signing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"

	"github.com/google/uuid"
)

// TokenLen is the encoded length of a session-id token (16 raw bytes,
// base64 urlsafe no-pad).
const TokenLen = 22

// SigLen is the encoded length of an 8-byte HMAC prefix, base64 urlsafe
// no-pad.
const SigLen = 11

// Signer signs and verifies callback tokens and deep-link payloads against a
// process-wide secret key K.
type Signer struct {
	key []byte
}

// New returns a Signer using secret as K. secret is typically SECRET_KEY
// from configuration.
func New(secret string) *Signer {
	return &Signer{key: []byte(secret)}
}

// sign returns urlsafeB64NoPad(HMAC-SHA256(K, data)[:n]).
func (s *Signer) sign(data string, n int) string {
	mac := hmac.New(sha256.New, s.key)
	mac.Write([]byte(data))
	sum := mac.Sum(nil)
	return base64.RawURLEncoding.EncodeToString(sum[:n])
}

// EncodeToken returns the 22-char urlsafe-base64 encoding of a session id's
// 16 raw bytes.
func EncodeToken(id uuid.UUID) string {
	return base64.RawURLEncoding.EncodeToString(id[:])
}

// DecodeToken reverses EncodeToken.
func DecodeToken(token string) (uuid.UUID, error) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return uuid.UUID{}, fmt.Errorf("signing: decode token: %w", err)
	}
	if len(raw) != 16 {
		return uuid.UUID{}, fmt.Errorf("signing: decode token: want 16 bytes, got %d", len(raw))
	}
	var id uuid.UUID
	copy(id[:], raw)
	return id, nil
}

// sigData builds the canonical string signed for a session: "group:user:id".
func sigData(groupID, userID int64, id uuid.UUID) string {
	return fmt.Sprintf("%d:%d:%s", groupID, userID, id.String())
}

// CallbackPayload builds the inline-button callback_data:
// "agree:{user_id}:{token}:{sig}".
func (s *Signer) CallbackPayload(groupID, userID int64, id uuid.UUID) string {
	token := EncodeToken(id)
	sig := s.sign(sigData(groupID, userID, id), 8)
	return fmt.Sprintf("agree:%d:%s:%s", userID, token, sig)
}

// DeepLinkPayload builds the /start argument: "agree_{token}{sig}" (no
// separator inside the suffix).
func (s *Signer) DeepLinkPayload(groupID, userID int64, id uuid.UUID) string {
	token := EncodeToken(id)
	sig := s.sign(sigData(groupID, userID, id), 8)
	return "agree_" + token + sig
}

// ParsedCallback is the structured form of a verified callback payload.
type ParsedCallback struct {
	UserID int64
	ID     uuid.UUID
}

// ErrInvalidCallback is returned for any malformed or unverifiable callback
// payload. Per spec, rejection is always silent — callers must not leak why
// verification failed.
var ErrInvalidCallback = fmt.Errorf("signing: invalid callback payload")

// VerifyCallback parses "agree:{user_id}:{token}:{sig}" and checks the
// signature in constant time against groupID. The group id is supplied by
// the caller (it is the single configured group), not recovered from the
// payload.
func (s *Signer) VerifyCallback(groupID int64, payload string) (ParsedCallback, error) {
	var userID int64
	var token, sig string
	if n, err := fmt.Sscanf(payload, "agree:%d:%s", &userID, &token); err != nil || n != 2 {
		return ParsedCallback{}, ErrInvalidCallback
	}

	// Sscanf with %s over "token:sig" captured everything after the second
	// colon in one run (no further colon in token/sig alphabets), so split
	// by hand instead of relying on a third %s verb.
	parts := splitTokenSig(token)
	if parts == nil {
		return ParsedCallback{}, ErrInvalidCallback
	}
	token, sig = parts[0], parts[1]
	if len(token) != TokenLen || len(sig) != SigLen {
		return ParsedCallback{}, ErrInvalidCallback
	}

	id, err := DecodeToken(token)
	if err != nil {
		return ParsedCallback{}, ErrInvalidCallback
	}

	want := s.sign(sigData(groupID, userID, id), 8)
	if !hmac.Equal([]byte(want), []byte(sig)) {
		return ParsedCallback{}, ErrInvalidCallback
	}

	return ParsedCallback{UserID: userID, ID: id}, nil
}

// splitTokenSig splits "{token}:{sig}" into its two parts, or returns nil if
// the shape does not match exactly one colon separator.
func splitTokenSig(s string) []string {
	idx := -1
	for i := 0; i < len(s); i++ {
		if s[i] == ':' {
			if idx != -1 {
				return nil // more than one colon: malformed
			}
			idx = i
		}
	}
	if idx == -1 {
		return nil
	}
	return []string{s[:idx], s[idx+1:]}
}

// ParsedStart is the structured form of a verified /start deep-link payload.
// Per spec's preserved open question, the group and user are intentionally
// not recovered from the payload — only the session id is. Callers must
// look up the session by ID and take group/user from the stored row.
type ParsedStart struct {
	ID uuid.UUID
}

// VerifyStart parses "agree_{token}{sig}" (token and sig concatenated with
// no separator) and checks the signature against the session looked up by
// the decoded id. Because group/user cannot be recovered from the opaque
// payload, the caller supplies them (taken from the resolved session row)
// for signature recomputation.
func (s *Signer) VerifyStart(groupID, userID int64, payload string) (ParsedStart, error) {
	const prefix = "agree_"
	if len(payload) != len(prefix)+TokenLen+SigLen {
		return ParsedStart{}, ErrInvalidCallback
	}
	if payload[:len(prefix)] != prefix {
		return ParsedStart{}, ErrInvalidCallback
	}
	rest := payload[len(prefix):]
	token := rest[:TokenLen]
	sig := rest[TokenLen:]

	id, err := DecodeToken(token)
	if err != nil {
		return ParsedStart{}, ErrInvalidCallback
	}

	want := s.sign(sigData(groupID, userID, id), 8)
	if !hmac.Equal([]byte(want), []byte(sig)) {
		return ParsedStart{}, ErrInvalidCallback
	}

	return ParsedStart{ID: id}, nil
}

// ParseStartPayload extracts only the session id from a /start deep-link
// argument, without verifying it against any group/user. This mirrors the
// original implementation's parse_start_payload, which returns (0, 0,
// session_id): the payload is treated as an opaque key into the session
// table, not a self-describing credential. Verification (VerifyStart) must
// still run once the session's true group/user are known.
func ParseStartPayload(payload string) (uuid.UUID, error) {
	const prefix = "agree_"
	if len(payload) != len(prefix)+TokenLen+SigLen || payload[:len(prefix)] != prefix {
		return uuid.UUID{}, ErrInvalidCallback
	}
	token := payload[len(prefix) : len(prefix)+TokenLen]
	return DecodeToken(token)
}
