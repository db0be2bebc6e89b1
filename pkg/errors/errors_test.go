package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorMessage(t *testing.T) {
	err := ErrNoTransformerConfigured.WithMessage("No transformer configured for '%s'.", "db.core.other")
	assert.Equal(t, "NO_TRANSFORMER_CONFIGURED: No transformer configured for 'db.core.other'.", err.Error())

	wrapped := ErrDecryption.WithCause(errors.New("cipher: message authentication failed"))
	assert.Equal(t, "DECRYPTION_FAILED: payload could not be decrypted (caused by: cipher: message authentication failed)", wrapped.Error())
}

func TestDerivedErrorsDoNotShareDetails(t *testing.T) {
	a := ErrMissingIdentifier.WithDetail("field", "citizenId")
	b := ErrMissingIdentifier.WithDetail("field", "contractId")

	assert.Equal(t, "citizenId", a.Details["field"])
	assert.Equal(t, "contractId", b.Details["field"])
	assert.Empty(t, ErrMissingIdentifier.Details)
}

func TestIsMatchesByCode(t *testing.T) {
	err := fmt.Errorf("decode: %w", ErrMalformedEnvelope.WithCause(errors.New("unexpected EOF")))

	assert.True(t, errors.Is(err, ErrMalformedEnvelope))
	assert.False(t, errors.Is(err, ErrDecryption))
	assert.Equal(t, "MALFORMED_ENVELOPE", Code(err))
	assert.Equal(t, "", Code(errors.New("plain")))
}

func TestRetryability(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		want bool
	}{
		{"key service", ErrKeyServiceUnavailable, true},
		{"target", ErrTargetUnavailable, true},
		{"decryption", ErrDecryption, false},
		{"forced retryable", ErrInternal.AsRetryable(), true},
		{"forced fatal", ErrKeyServiceUnavailable.AsFatal(), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.IsRetryable())
			assert.Equal(t, !tt.want, tt.err.IsFatal())
		})
	}
}

func TestRecoverPanic(t *testing.T) {
	assert.Nil(t, RecoverPanic(nil))

	err := RecoverPanic("boom")
	var appErr *Error
	assert.True(t, errors.As(err, &appErr))
	assert.Equal(t, ErrInternal.Code, appErr.Code)
	assert.Equal(t, true, appErr.Details["panic"])
	assert.NotEmpty(t, appErr.Details["stack_trace"])
	assert.True(t, appErr.IsFatal())
	assert.Contains(t, err.Error(), "panic: boom")

	cause := errors.New("nil map")
	assert.ErrorIs(t, RecoverPanic(cause), cause)
}
