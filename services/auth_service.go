// services/auth_service.go
package services

import (
	"context"
	"crypto/ed25519"
	"errors"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// AuthService turns a wallet signature over a server challenge into a session token.
type AuthService struct {
	Challenges *ChallengeIssuer
	Sessions   *SessionSigner
	Players    *PlayerService
	Guard      NonceGuard // nil keeps challenges purely stateless
	Log        *zap.Logger
}

func NewAuthService(keys AuthKeys, clock clockwork.Clock, players *PlayerService, guard NonceGuard, log *zap.Logger) *AuthService {
	return &AuthService{
		Challenges: NewChallengeIssuer(keys.Nonce, clock),
		Sessions:   NewSessionSigner(keys.Session, clock),
		Players:    players,
		Guard:      guard,
		Log:        log,
	}
}

func (s *AuthService) Challenge(identity string) (*NonceChallenge, error) {
	return s.Challenges.Issue(identity)
}

// IssuedSession is returned by a successful sign-in.
type IssuedSession struct {
	Token  string
	Claims SessionClaims
}

// IssueAfterSignatureCheck verifies the challenge and the detached ed25519
// signature over the exact message bytes, then issues a session.
func (s *AuthService) IssueAfterSignatureCheck(ctx context.Context, identity, rawMessage string, signature []byte) (_ *IssuedSession, err error) {
	defer func() {
		outcome := "ok"
		if err != nil {
			outcome = string(KindOf(err))
			if e := (*Error)(nil); errors.As(err, &e) && e.Reason != "" {
				outcome = e.Reason
			}
		}
		authAttempts.WithLabelValues(outcome).Inc()
	}()

	pub, err := ParseIdentity(identity)
	if err != nil {
		return nil, err
	}
	msg, err := ParseSignInMessage(rawMessage)
	if err != nil {
		return nil, Unauthorized(ReasonBadSignature, "message is not a sign-in challenge")
	}
	if msg.Identity != identity {
		return nil, Unauthorized(ReasonBadSignature, "message was issued for a different wallet")
	}
	if !s.Challenges.Verify(identity, msg.IssuedAtMs, msg.Nonce) {
		return nil, Unauthorized(ReasonChallengeExpired, "challenge expired or invalid, request a new one")
	}
	if len(signature) != ed25519.SignatureSize || !ed25519.Verify(pub, []byte(rawMessage), signature) {
		return nil, Unauthorized(ReasonBadSignature, "signature does not match wallet")
	}

	if s.Guard != nil {
		fresh, err := s.Guard.Claim(ctx, identity, msg.Nonce, s.Challenges.Remaining(msg.IssuedAtMs))
		if err != nil {
			return nil, Internal("claim nonce", err)
		}
		if !fresh {
			return nil, Unauthorized(ReasonChallengeExpired, "challenge already used, request a new one")
		}
	}

	if s.Players != nil {
		if _, err := s.Players.EnsurePlayer(ctx, identity); err != nil {
			return nil, err
		}
	}

	token, claims, err := s.Sessions.Issue(identity)
	if err != nil {
		return nil, err
	}
	s.Log.Info("[AUTH] session issued", zap.String("identity", identity), zap.Int64("expires_at_ms", claims.ExpiresAtMs))
	return &IssuedSession{Token: token, Claims: claims}, nil
}

// Validate returns the identity bound to a session token.
func (s *AuthService) Validate(token string) (string, error) {
	claims, err := s.Sessions.Validate(token)
	if err != nil {
		return "", err
	}
	return claims.Identity, nil
}
