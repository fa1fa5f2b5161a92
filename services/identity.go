package services

import (
	"crypto/ed25519"
	"strings"

	"github.com/mr-tron/base58"
)

// ParseIdentity decodes a base58 wallet address into its ed25519 public key.
func ParseIdentity(identity string) (ed25519.PublicKey, error) {
	if identity == "" {
		return nil, InvalidInput("identity is required")
	}
	if strings.TrimSpace(identity) != identity {
		return nil, InvalidInput("identity must not contain surrounding whitespace")
	}
	raw, err := base58.Decode(identity)
	if err != nil {
		return nil, InvalidInput("identity is not valid base58")
	}
	if len(raw) != ed25519.PublicKeySize {
		return nil, InvalidInput("identity must encode a %d-byte public key", ed25519.PublicKeySize)
	}
	return ed25519.PublicKey(raw), nil
}

// ValidateIdentity is ParseIdentity without the key.
func ValidateIdentity(identity string) error {
	_, err := ParseIdentity(identity)
	return err
}
