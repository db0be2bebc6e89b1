package keyservice

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/kms/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"claimant-consumer/internal/logger"
	"claimant-consumer/pkg/circuitbreaker"
	apperrors "claimant-consumer/pkg/errors"
	"claimant-consumer/pkg/retry"
)

func testMasterKey() []byte {
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i)
	}
	return key
}

func TestLocalServiceRoundTrip(t *testing.T) {
	svc, err := NewLocalService("kek-1", testMasterKey())
	require.NoError(t, err)

	key, err := svc.IssueDataKey(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "kek-1", key.KeyID)
	assert.Len(t, key.Plaintext, 32)
	assert.NotEmpty(t, key.CiphertextHandle)

	plaintext, err := svc.ResolveDataKey(context.Background(), key.KeyID, key.CiphertextHandle)
	require.NoError(t, err)
	assert.Equal(t, key.Plaintext, plaintext)
}

func TestLocalServiceRejectsBadHandles(t *testing.T) {
	svc, err := NewLocalService("kek-1", testMasterKey())
	require.NoError(t, err)
	key, err := svc.IssueDataKey(context.Background())
	require.NoError(t, err)

	tampered := append([]byte(nil), key.CiphertextHandle...)
	tampered[len(tampered)-1] ^= 0xff

	tests := []struct {
		name   string
		keyID  string
		handle []byte
	}{
		{"unknown kek", "kek-2", key.CiphertextHandle},
		{"tampered", "kek-1", tampered},
		{"short", "kek-1", []byte{1, 2}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.ResolveDataKey(context.Background(), tt.keyID, tt.handle)
			assert.ErrorIs(t, err, apperrors.ErrKeyResolution)
			assert.False(t, IsUnavailable(err))
		})
	}
}

func TestNewLocalServiceInvalidKey(t *testing.T) {
	_, err := NewLocalService("kek", []byte("short"))
	assert.Error(t, err)
}

type mockKMS struct {
	mock.Mock
}

func (m *mockKMS) GenerateDataKey(ctx context.Context, in *kms.GenerateDataKeyInput, _ ...func(*kms.Options)) (*kms.GenerateDataKeyOutput, error) {
	args := m.Called(ctx, in)
	if out := args.Get(0); out != nil {
		return out.(*kms.GenerateDataKeyOutput), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockKMS) Decrypt(ctx context.Context, in *kms.DecryptInput, _ ...func(*kms.Options)) (*kms.DecryptOutput, error) {
	args := m.Called(ctx, in)
	if out := args.Get(0); out != nil {
		return out.(*kms.DecryptOutput), args.Error(1)
	}
	return nil, args.Error(1)
}

func TestKMSServiceIssueDataKey(t *testing.T) {
	client := new(mockKMS)
	client.On("GenerateDataKey", mock.Anything, mock.MatchedBy(func(in *kms.GenerateDataKeyInput) bool {
		return aws.ToString(in.KeyId) == "alias/claimant" && in.KeySpec == types.DataKeySpecAes256
	})).Return(&kms.GenerateDataKeyOutput{
		KeyId:          aws.String("arn:aws:kms:eu-west-2:1:key/abc"),
		Plaintext:      []byte("plaintext-key"),
		CiphertextBlob: []byte("wrapped-key"),
	}, nil)

	svc := NewKMSService(client, "alias/claimant", "AES_256")
	key, err := svc.IssueDataKey(context.Background())

	require.NoError(t, err)
	assert.Equal(t, DataKey{
		KeyID:            "arn:aws:kms:eu-west-2:1:key/abc",
		Plaintext:        []byte("plaintext-key"),
		CiphertextHandle: []byte("wrapped-key"),
	}, key)
	client.AssertExpectations(t)
}

func TestKMSServiceIssueDataKeyFailures(t *testing.T) {
	tests := []struct {
		name string
		out  *kms.GenerateDataKeyOutput
		err  error
	}{
		{"transport", nil, errors.New("dial tcp: i/o timeout")},
		{"partial response", &kms.GenerateDataKeyOutput{KeyId: aws.String("k"), Plaintext: []byte("p")}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := new(mockKMS)
			client.On("GenerateDataKey", mock.Anything, mock.Anything).Return(tt.out, tt.err)

			key, err := NewKMSService(client, "alias/x", "AES_256").IssueDataKey(context.Background())
			assert.True(t, IsUnavailable(err))
			assert.Equal(t, DataKey{}, key)
		})
	}
}

func TestKMSServiceResolveDataKey(t *testing.T) {
	client := new(mockKMS)
	client.On("Decrypt", mock.Anything, mock.MatchedBy(func(in *kms.DecryptInput) bool {
		return string(in.CiphertextBlob) == "good"
	})).Return(&kms.DecryptOutput{Plaintext: []byte("data-key")}, nil)
	client.On("Decrypt", mock.Anything, mock.MatchedBy(func(in *kms.DecryptInput) bool {
		return string(in.CiphertextBlob) == "bad"
	})).Return(nil, &types.InvalidCiphertextException{Message: aws.String("bad blob")})
	client.On("Decrypt", mock.Anything, mock.MatchedBy(func(in *kms.DecryptInput) bool {
		return string(in.CiphertextBlob) == "throttled"
	})).Return(nil, errors.New("ThrottlingException"))

	svc := NewKMSService(client, "alias/x", "AES_256")

	plaintext, err := svc.ResolveDataKey(context.Background(), "kek", []byte("good"))
	require.NoError(t, err)
	assert.Equal(t, []byte("data-key"), plaintext)

	_, err = svc.ResolveDataKey(context.Background(), "kek", []byte("bad"))
	assert.ErrorIs(t, err, apperrors.ErrKeyResolution)

	_, err = svc.ResolveDataKey(context.Background(), "kek", []byte("throttled"))
	assert.True(t, IsUnavailable(err))
}

type countingService struct {
	issueErrs   []error
	resolveErrs []error
	issues      int
	resolves    int
}

func (s *countingService) IssueDataKey(context.Context) (DataKey, error) {
	s.issues++
	if len(s.issueErrs) > 0 {
		err := s.issueErrs[0]
		s.issueErrs = s.issueErrs[1:]
		return DataKey{}, err
	}
	return DataKey{KeyID: "k", Plaintext: []byte("p"), CiphertextHandle: []byte("h")}, nil
}

func (s *countingService) ResolveDataKey(_ context.Context, _ string, handle []byte) ([]byte, error) {
	s.resolves++
	if len(s.resolveErrs) > 0 {
		err := s.resolveErrs[0]
		s.resolveErrs = s.resolveErrs[1:]
		return nil, err
	}
	return append([]byte("plain-"), handle...), nil
}

func fastPolicy() retry.Policy {
	return retry.Policy{MaxAttempts: 3, InitialInterval: time.Millisecond, MaxInterval: time.Millisecond, Multiplier: 1}
}

func TestRetryingServiceRetriesUnavailable(t *testing.T) {
	inner := &countingService{issueErrs: []error{unavailable("issue", errors.New("reset")), unavailable("issue", errors.New("reset"))}}
	svc := NewRetryingService(inner, fastPolicy(), logger.NopLogger())

	key, err := svc.IssueDataKey(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "k", key.KeyID)
	assert.Equal(t, 3, inner.issues)
}

func TestRetryingServiceDoesNotRetryResolutionErrors(t *testing.T) {
	inner := &countingService{resolveErrs: []error{unresolvable("k", errors.New("bad"))}}
	svc := NewRetryingService(inner, fastPolicy(), logger.NopLogger())

	_, err := svc.ResolveDataKey(context.Background(), "k", []byte("h"))
	assert.ErrorIs(t, err, apperrors.ErrKeyResolution)
	assert.Equal(t, 1, inner.resolves)
}

func TestCachingService(t *testing.T) {
	inner := &countingService{}
	svc := NewCachingService(inner, 10, time.Minute)

	for i := 0; i < 3; i++ {
		plaintext, err := svc.ResolveDataKey(context.Background(), "k", []byte("h1"))
		require.NoError(t, err)
		assert.Equal(t, []byte("plain-h1"), plaintext)
	}
	_, err := svc.ResolveDataKey(context.Background(), "k", []byte("h2"))
	require.NoError(t, err)

	assert.Equal(t, 2, inner.resolves)

	_, _ = svc.IssueDataKey(context.Background())
	_, _ = svc.IssueDataKey(context.Background())
	assert.Equal(t, 2, inner.issues)
}

func TestBreakerServiceIgnoresResolutionErrors(t *testing.T) {
	errs := make([]error, 5)
	for i := range errs {
		errs[i] = unresolvable("k", errors.New("bad"))
	}
	inner := &countingService{resolveErrs: errs}
	breaker := circuitbreaker.NewWrapper(circuitbreaker.Config{
		Name:         "keyservice-test-resolution",
		MaxRequests:  1,
		Interval:     time.Minute,
		Timeout:      time.Minute,
		FailureRatio: 0.5,
		MinRequests:  2,
		IsSuccessful: func(err error) bool { return !IsUnavailable(err) },
	})
	svc := NewBreakerService(inner, breaker)

	for i := 0; i < 5; i++ {
		_, err := svc.ResolveDataKey(context.Background(), "k", []byte("h"))
		assert.ErrorIs(t, err, apperrors.ErrKeyResolution)
	}
	assert.False(t, breaker.IsOpen())
	assert.Equal(t, 5, inner.resolves)
}

func TestBreakerServiceOpensOnUnavailable(t *testing.T) {
	inner := &countingService{issueErrs: []error{
		unavailable("issue", errors.New("down")),
		unavailable("issue", errors.New("down")),
	}}
	breaker := circuitbreaker.NewWrapper(circuitbreaker.Config{
		Name:         "keyservice-test-open",
		MaxRequests:  1,
		Interval:     time.Minute,
		Timeout:      time.Minute,
		FailureRatio: 0.5,
		MinRequests:  2,
		IsSuccessful: func(err error) bool { return !IsUnavailable(err) },
	})
	svc := NewBreakerService(inner, breaker)

	_, _ = svc.IssueDataKey(context.Background())
	_, _ = svc.IssueDataKey(context.Background())
	require.True(t, breaker.IsOpen())

	_, err := svc.IssueDataKey(context.Background())
	assert.True(t, IsUnavailable(err))
	assert.Equal(t, 2, inner.issues)
}

func TestLimitedServiceHonoursContext(t *testing.T) {
	inner := &countingService{}
	svc := NewLimitedService(inner, 0.001, 1)

	_, err := svc.IssueDataKey(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = svc.IssueDataKey(ctx)
	assert.True(t, IsUnavailable(err))
	assert.Equal(t, 1, inner.issues)
}
