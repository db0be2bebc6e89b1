package keyservice

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/kms/types"
)

// KMSAPI is the subset of the KMS client used here.
type KMSAPI interface {
	GenerateDataKey(ctx context.Context, in *kms.GenerateDataKeyInput, optFns ...func(*kms.Options)) (*kms.GenerateDataKeyOutput, error)
	Decrypt(ctx context.Context, in *kms.DecryptInput, optFns ...func(*kms.Options)) (*kms.DecryptOutput, error)
}

// KMSService issues data keys under a customer master key alias.
type KMSService struct {
	client   KMSAPI
	cmkAlias string
	keySpec  types.DataKeySpec
}

func NewKMSService(client KMSAPI, cmkAlias, dataKeySpec string) *KMSService {
	return &KMSService{client: client, cmkAlias: cmkAlias, keySpec: types.DataKeySpec(dataKeySpec)}
}

// NewKMSClient builds a client from the default AWS credential chain.
func NewKMSClient(ctx context.Context, region, endpoint string) (*kms.Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{}
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	return kms.NewFromConfig(awsCfg, func(o *kms.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	}), nil
}

func (s *KMSService) IssueDataKey(ctx context.Context) (DataKey, error) {
	out, err := s.client.GenerateDataKey(ctx, &kms.GenerateDataKeyInput{
		KeyId:   aws.String(s.cmkAlias),
		KeySpec: s.keySpec,
	})
	if err != nil {
		return DataKey{}, unavailable("issue", err)
	}
	if out.KeyId == nil || len(out.Plaintext) == 0 || len(out.CiphertextBlob) == 0 {
		return DataKey{}, unavailable("issue", errors.New("incomplete GenerateDataKey response"))
	}

	return DataKey{
		KeyID:            aws.ToString(out.KeyId),
		Plaintext:        out.Plaintext,
		CiphertextHandle: out.CiphertextBlob,
	}, nil
}

func (s *KMSService) ResolveDataKey(ctx context.Context, keyID string, handle []byte) ([]byte, error) {
	in := &kms.DecryptInput{CiphertextBlob: handle}
	if keyID != "" {
		in.KeyId = aws.String(keyID)
	}

	out, err := s.client.Decrypt(ctx, in)
	if err != nil {
		if isPermanentKMSError(err) {
			return nil, unresolvable(keyID, err)
		}
		return nil, unavailable("resolve", err)
	}
	return out.Plaintext, nil
}

// isPermanentKMSError reports errors that a retry cannot fix.
func isPermanentKMSError(err error) bool {
	var (
		invalidCiphertext *types.InvalidCiphertextException
		incorrectKey      *types.IncorrectKeyException
		notFound          *types.NotFoundException
		disabled          *types.DisabledException
		invalidState      *types.KMSInvalidStateException
	)
	return errors.As(err, &invalidCiphertext) ||
		errors.As(err, &incorrectKey) ||
		errors.As(err, &notFound) ||
		errors.As(err, &disabled) ||
		errors.As(err, &invalidState)
}
