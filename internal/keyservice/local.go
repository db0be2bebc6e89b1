package keyservice

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
)

const dataKeySize = 32

// LocalService wraps data keys with a master key held in process memory.
// It stands in for KMS in development and tests.
type LocalService struct {
	keyID string
	aead  cipher.AEAD
}

func NewLocalService(keyID string, masterKey []byte) (*LocalService, error) {
	block, err := aes.NewCipher(masterKey)
	if err != nil {
		return nil, fmt.Errorf("invalid master key: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &LocalService{keyID: keyID, aead: aead}, nil
}

func (s *LocalService) IssueDataKey(ctx context.Context) (DataKey, error) {
	if err := ctx.Err(); err != nil {
		return DataKey{}, unavailable("issue", err)
	}

	plaintext := make([]byte, dataKeySize)
	if _, err := rand.Read(plaintext); err != nil {
		return DataKey{}, unavailable("issue", err)
	}

	nonce := make([]byte, s.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return DataKey{}, unavailable("issue", err)
	}

	handle := s.aead.Seal(nonce, nonce, plaintext, []byte(s.keyID))
	return DataKey{KeyID: s.keyID, Plaintext: plaintext, CiphertextHandle: handle}, nil
}

func (s *LocalService) ResolveDataKey(ctx context.Context, keyID string, handle []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, unavailable("resolve", err)
	}
	if keyID != "" && keyID != s.keyID {
		return nil, unresolvable(keyID, fmt.Errorf("unknown key encryption key %q", keyID))
	}

	n := s.aead.NonceSize()
	if len(handle) <= n {
		return nil, unresolvable(keyID, errors.New("data key handle too short"))
	}

	plaintext, err := s.aead.Open(nil, handle[:n], handle[n:], []byte(s.keyID))
	if err != nil {
		return nil, unresolvable(keyID, err)
	}
	return plaintext, nil
}
