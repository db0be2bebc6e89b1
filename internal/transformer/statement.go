package transformer

import (
	"context"
	"encoding/base64"
	"fmt"

	"claimant-consumer/internal/cipher"
	"claimant-consumer/internal/keyservice"
)

// Statement emits the statement row with take home pay encrypted under a
// data key issued for this record.
type Statement struct {
	keys keyservice.Service
}

func NewStatement(keys keyservice.Service) *Statement {
	return &Statement{keys: keys}
}

type encryptedValue struct {
	KeyID        string `json:"encryption_id"`
	EncryptedKey string `json:"encrypted_key"`
	IV           string `json:"iv"`
	Ciphertext   string `json:"ciphertext"`
}

func (s *Statement) Transform(ctx context.Context, doc []byte) ([]byte, error) {
	src, err := parseObject(doc)
	if err != nil {
		return nil, err
	}

	statementID, err := requiredID(src, "statementId")
	if err != nil {
		return nil, err
	}

	var takeHomePay *encryptedValue
	if pay := src.Get("takeHomePay"); pay.Exists() && pay.String() != "" {
		takeHomePay, err = s.encrypt(ctx, pay.String())
		if err != nil {
			return nil, err
		}
	}

	return render(map[string]interface{}{
		"statement_id":      statementID,
		"citizen_id":        optional(src, "people.0"),
		"ap_start_date":     optional(src, "assessmentPeriod.startDate"),
		"ap_end_date":       optional(src, "assessmentPeriod.endDate"),
		"created_date_time": optional(src, "createdDateTime"),
		"take_home_pay":     takeHomePay,
	})
}

func (s *Statement) encrypt(ctx context.Context, value string) (*encryptedValue, error) {
	key, err := s.keys.IssueDataKey(ctx)
	if err != nil {
		return nil, err
	}

	iv, ciphertext, err := cipher.Seal(key.Plaintext, []byte(value))
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt take home pay: %w", err)
	}

	return &encryptedValue{
		KeyID:        key.KeyID,
		EncryptedKey: base64.StdEncoding.EncodeToString(key.CiphertextHandle),
		IV:           base64.StdEncoding.EncodeToString(iv),
		Ciphertext:   base64.StdEncoding.EncodeToString(ciphertext),
	}, nil
}
