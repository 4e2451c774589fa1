package service

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"

	"golang.org/x/crypto/blake2b"
)

const tokenBytes = 32

// TokenHasher derives the stored form of invite tokens. Only the keyed hash is
// persisted, so a database read does not yield claimable tokens.
type TokenHasher struct {
	key [blake2b.Size]byte
}

// NewTokenHasher keys the hash with a server-side pepper.
func NewTokenHasher(pepper string) (*TokenHasher, error) {
	if pepper == "" {
		return nil, errors.New("invite token pepper is required")
	}
	return &TokenHasher{key: blake2b.Sum512([]byte(pepper))}, nil
}

// Hash returns the hex keyed BLAKE2b-256 of token.
func (h *TokenHasher) Hash(token string) string {
	mac, err := blake2b.New256(h.key[:])
	if err != nil {
		// key length is fixed at 64 bytes, the BLAKE2b maximum
		panic(err)
	}
	mac.Write([]byte(token))
	return hex.EncodeToString(mac.Sum(nil))
}

// Generate returns a fresh URL-safe token and its hash.
func (h *TokenHasher) Generate() (token, hash string, err error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", "", fmt.Errorf("generate invite token: %w", err)
	}
	token = base64.RawURLEncoding.EncodeToString(buf)
	return token, h.Hash(token), nil
}
