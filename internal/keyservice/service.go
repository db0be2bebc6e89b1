// Package keyservice issues and resolves envelope encryption data keys.
package keyservice

import (
	"context"

	apperrors "claimant-consumer/pkg/errors"
)

// DataKey is a freshly issued data key. Plaintext must never be persisted;
// CiphertextHandle is what travels with the data it protects.
type DataKey struct {
	KeyID            string
	Plaintext        []byte
	CiphertextHandle []byte
}

type Service interface {
	IssueDataKey(ctx context.Context) (DataKey, error)
	ResolveDataKey(ctx context.Context, keyID string, handle []byte) ([]byte, error)
}

// ErrKeyServiceUnavailable is returned, wrapped, for transport and auth failures.
var ErrKeyServiceUnavailable = apperrors.ErrKeyServiceUnavailable

func unavailable(op string, err error) error {
	return ErrKeyServiceUnavailable.WithCause(err).WithDetail("operation", op)
}

func unresolvable(keyID string, err error) error {
	return apperrors.ErrKeyResolution.WithCause(err).WithDetail("key_id", keyID)
}
