package services

import (
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// AuthKeys are the independent HMAC keys derived from the single AUTH_SECRET.
type AuthKeys struct {
	Nonce   []byte
	Session []byte
}

func DeriveAuthKeys(secret string) (AuthKeys, error) {
	if len(secret) < 32 {
		return AuthKeys{}, fmt.Errorf("auth secret must be at least 32 bytes")
	}
	nonceKey, err := expand(secret, "wager-arena/nonce/v1")
	if err != nil {
		return AuthKeys{}, err
	}
	sessionKey, err := expand(secret, "wager-arena/session/v1")
	if err != nil {
		return AuthKeys{}, err
	}
	return AuthKeys{Nonce: nonceKey, Session: sessionKey}, nil
}

func expand(secret, info string) ([]byte, error) {
	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(secret), nil, []byte(info)), key); err != nil {
		return nil, fmt.Errorf("derive %s: %w", info, err)
	}
	return key, nil
}
