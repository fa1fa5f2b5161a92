// services/nonce.go
package services

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
)

const (
	ChallengeWindow = 5 * time.Minute
	nonceHexLen     = 32
	// issuedAt values this far ahead of the local clock are still accepted, to
	// tolerate skew between stateless instances.
	challengeClockSkew = 30 * time.Second

	signInHeader = "Wager Arena sign-in"
)

// NonceChallenge is never stored: it is re-derived from (identity, issuedAtMs).
type NonceChallenge struct {
	Nonce         string `json:"nonce"`
	IssuedAtMs    int64  `json:"issuedAtMs"`
	MessageToSign string `json:"messageToSign"`
}

type ChallengeIssuer struct {
	key   []byte
	clock clockwork.Clock
}

func NewChallengeIssuer(key []byte, clock clockwork.Clock) *ChallengeIssuer {
	return &ChallengeIssuer{key: key, clock: clock}
}

func (c *ChallengeIssuer) Issue(identity string) (*NonceChallenge, error) {
	if err := ValidateIdentity(identity); err != nil {
		return nil, err
	}
	issuedAt := c.clock.Now().UnixMilli()
	nonce := c.derive(identity, issuedAt)
	return &NonceChallenge{
		Nonce:         nonce,
		IssuedAtMs:    issuedAt,
		MessageToSign: BuildSignInMessage(identity, nonce, issuedAt),
	}, nil
}

// Verify re-derives the nonce and checks the window. It fails closed.
func (c *ChallengeIssuer) Verify(identity string, issuedAtMs int64, nonce string) bool {
	if identity == "" || len(nonce) != nonceHexLen {
		return false
	}
	age := c.clock.Now().Sub(time.UnixMilli(issuedAtMs))
	if age > ChallengeWindow || age < -challengeClockSkew {
		return false
	}
	return hmac.Equal([]byte(nonce), []byte(c.derive(identity, issuedAtMs)))
}

// Remaining returns how long the challenge issued at issuedAtMs stays valid.
func (c *ChallengeIssuer) Remaining(issuedAtMs int64) time.Duration {
	return time.UnixMilli(issuedAtMs).Add(ChallengeWindow).Sub(c.clock.Now())
}

func (c *ChallengeIssuer) derive(identity string, issuedAtMs int64) string {
	mac := hmac.New(sha256.New, c.key)
	mac.Write([]byte(identity))
	mac.Write([]byte{'|'})
	mac.Write([]byte(strconv.FormatInt(issuedAtMs, 10)))
	return hex.EncodeToString(mac.Sum(nil))[:nonceHexLen]
}

// BuildSignInMessage renders the exact text the wallet signs.
func BuildSignInMessage(identity, nonce string, issuedAtMs int64) string {
	return fmt.Sprintf("%s\nWallet: %s\nNonce: %s\nIssued At: %d", signInHeader, identity, nonce, issuedAtMs)
}

// SignInMessage is the parsed form of a signed sign-in message.
type SignInMessage struct {
	Identity   string
	Nonce      string
	IssuedAtMs int64
}

func ParseSignInMessage(raw string) (*SignInMessage, error) {
	lines := strings.Split(strings.ReplaceAll(raw, "\r\n", "\n"), "\n")
	if len(lines) != 4 || lines[0] != signInHeader {
		return nil, fmt.Errorf("unrecognised sign-in message")
	}
	var msg SignInMessage
	var ok bool
	if msg.Identity, ok = strings.CutPrefix(lines[1], "Wallet: "); !ok {
		return nil, fmt.Errorf("missing wallet line")
	}
	if msg.Nonce, ok = strings.CutPrefix(lines[2], "Nonce: "); !ok {
		return nil, fmt.Errorf("missing nonce line")
	}
	issued, ok := strings.CutPrefix(lines[3], "Issued At: ")
	if !ok {
		return nil, fmt.Errorf("missing issued-at line")
	}
	ms, err := strconv.ParseInt(issued, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("bad issued-at: %w", err)
	}
	msg.IssuedAtMs = ms
	return &msg, nil
}
