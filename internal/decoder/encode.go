package decoder

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"claimant-consumer/internal/cipher"
	"claimant-consumer/internal/keyservice"
)

// Message is the cleartext form of an envelope.
type Message struct {
	Type         string
	ID           interface{}
	LastModified string
	DBObject     []byte
	// Extra holds additional message level fields such as _removedDateTime.
	Extra map[string]interface{}
}

// Seal encrypts m.DBObject under a freshly issued data key and renders the
// envelope in the wire format Process reads.
func Seal(ctx context.Context, keys keyservice.Service, m Message) ([]byte, error) {
	dataKey, err := keys.IssueDataKey(ctx)
	if err != nil {
		return nil, err
	}

	iv, ciphertext, err := cipher.Seal(dataKey.Plaintext, m.DBObject)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt db object: %w", err)
	}

	msg := map[string]interface{}{
		fieldType:     m.Type,
		fieldDBObject: base64.StdEncoding.EncodeToString(ciphertext),
		fieldEncryption: map[string]interface{}{
			fieldVersion:      2,
			fieldKEKID:        dataKey.KeyID,
			fieldEncryptedKey: base64.StdEncoding.EncodeToString(dataKey.CiphertextHandle),
			fieldIV:           base64.StdEncoding.EncodeToString(iv),
			fieldAlgorithm:    cipher.AlgorithmGCM,
		},
	}
	if m.ID != nil {
		msg[fieldID] = m.ID
	}
	if m.LastModified != "" {
		msg[timestampFields[0]] = m.LastModified
	}
	for k, v := range m.Extra {
		msg[k] = v
	}

	return json.Marshal(map[string]interface{}{fieldMessage: msg})
}
