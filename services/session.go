// services/session.go
package services

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
)

const SessionLifetime = time.Hour

// SessionClaims is the signed payload of a session token.
type SessionClaims struct {
	Identity    string `json:"identity"`
	IssuedAtMs  int64  `json:"issuedAtMs"`
	ExpiresAtMs int64  `json:"expiresAtMs"`
}

// SessionSigner issues and validates stateless bearer tokens of the form
// base64url(payload) + "." + hex(hmac(payload)).
type SessionSigner struct {
	key   []byte
	clock clockwork.Clock
}

func NewSessionSigner(key []byte, clock clockwork.Clock) *SessionSigner {
	return &SessionSigner{key: key, clock: clock}
}

func (s *SessionSigner) Issue(identity string) (string, SessionClaims, error) {
	now := s.clock.Now()
	claims := SessionClaims{
		Identity:    identity,
		IssuedAtMs:  now.UnixMilli(),
		ExpiresAtMs: now.Add(SessionLifetime).UnixMilli(),
	}
	payload, err := json.Marshal(claims)
	if err != nil {
		return "", SessionClaims{}, Internal("marshal session", err)
	}
	token := base64.RawURLEncoding.EncodeToString(payload) + "." + hex.EncodeToString(s.sign(payload))
	return token, claims, nil
}

// Validate returns the bound claims. Expiry is reported with its own reason.
func (s *SessionSigner) Validate(token string) (*SessionClaims, error) {
	encoded, mac, ok := strings.Cut(strings.TrimSpace(token), ".")
	if !ok || encoded == "" || mac == "" {
		return nil, Unauthorized(ReasonSessionInvalid, "malformed session token")
	}
	payload, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return nil, Unauthorized(ReasonSessionInvalid, "malformed session token")
	}
	got, err := hex.DecodeString(mac)
	if err != nil || !hmac.Equal(got, s.sign(payload)) {
		return nil, Unauthorized(ReasonSessionInvalid, "invalid session token")
	}

	var claims SessionClaims
	if err := json.Unmarshal(payload, &claims); err != nil || claims.Identity == "" {
		return nil, Unauthorized(ReasonSessionInvalid, "malformed session token")
	}
	if s.clock.Now().UnixMilli() >= claims.ExpiresAtMs {
		return nil, Unauthorized(ReasonSessionExpired, "session expired, sign in again")
	}
	return &claims, nil
}

func (s *SessionSigner) sign(payload []byte) []byte {
	mac := hmac.New(sha256.New, s.key)
	mac.Write(payload)
	return mac.Sum(nil)
}
