// Package decoder turns raw envelope records into decrypted extracts.
package decoder

import (
	"context"
	"encoding/base64"
	"strings"

	"github.com/tidwall/gjson"

	"claimant-consumer/internal/cipher"
	"claimant-consumer/internal/domain"
	"claimant-consumer/internal/keyservice"
	apperrors "claimant-consumer/pkg/errors"
)

// Envelope field names.
const (
	fieldMessage      = "message"
	fieldType         = "@type"
	fieldID           = "_id"
	fieldDBObject     = "dbObject"
	fieldEncryption   = "encryption"
	fieldVersion      = "encryptionVersion"
	fieldKEKID        = "keyEncryptionKeyId"
	fieldEncryptedKey = "encryptedEncryptionKey"
	fieldPlaintextKey = "plaintextEncryptionKey"
	fieldIV           = "initialisationVector"
	fieldAlgorithm    = "algorithm"
)

// Version 1 envelopes carry the data key in the clear.
const embeddedKeyVersion = 1

// timestampFields are consulted in order; the first non-blank one wins.
var timestampFields = []string{
	"_lastModifiedDateTime",
	"_removedDateTime",
	"createdDateTimeStamp",
}

type Decoder struct {
	keys     keyservice.Service
	idFields map[string]string
}

// New returns a Decoder. idFields maps a topic to the field of message._id
// holding the natural identifier.
func New(keys keyservice.Service, idFields map[string]string) *Decoder {
	return &Decoder{keys: keys, idFields: idFields}
}

// Process decodes one record. Every failure is returned as a failed outcome.
func (d *Decoder) Process(ctx context.Context, rec domain.SourceRecord) domain.Outcome[domain.Extract] {
	env, err := d.decrypt(ctx, rec.Value)
	if err != nil {
		return domain.Failed[domain.Extract](rec, err)
	}

	plaintext := gjson.ParseBytes(env.Plaintext)
	if !gjson.ValidBytes(env.Plaintext) || !plaintext.IsObject() {
		return domain.Failed[domain.Extract](rec, apperrors.ErrMalformedPlaintext)
	}

	msg := gjson.GetBytes(env.Document, fieldMessage)

	typ := child(msg, fieldType)
	if typ.Type != gjson.String {
		return domain.Failed[domain.Extract](rec, apperrors.ErrMissingAction.WithMessage("%s is absent", fieldType))
	}
	action, err := domain.ParseAction(typ.String())
	if err != nil {
		return domain.Failed[domain.Extract](rec, apperrors.ErrMissingAction.WithCause(err))
	}

	ts, tsField := timestamp(msg)

	return domain.Succeeded(rec, domain.Extract{
		Document:       env.Document,
		Plaintext:      env.Plaintext,
		ID:             NaturalID(msg, d.idFields[rec.Topic]),
		Action:         action,
		Timestamp:      ts,
		TimestampField: tsField,
	})
}

func (d *Decoder) decrypt(ctx context.Context, value []byte) (domain.Envelope, error) {
	if !gjson.ValidBytes(value) {
		return domain.Envelope{}, apperrors.ErrMalformedEnvelope.WithMessage("record value is not JSON")
	}

	msg := gjson.GetBytes(value, fieldMessage)
	if !msg.IsObject() {
		return domain.Envelope{}, apperrors.ErrMalformedEnvelope.WithMessage("%s is not an object", fieldMessage)
	}
	enc := msg.Get(fieldEncryption)
	if !enc.IsObject() {
		return domain.Envelope{}, apperrors.ErrMalformedEnvelope.WithMessage("%s.%s is not an object", fieldMessage, fieldEncryption)
	}

	ciphertext, err := decodeField(msg, fieldDBObject)
	if err != nil {
		return domain.Envelope{}, err
	}
	iv, err := decodeField(enc, fieldIV)
	if err != nil {
		return domain.Envelope{}, err
	}

	env := domain.Envelope{
		Document:         value,
		KeyEncryptionKey: enc.Get(fieldKEKID).String(),
		Algorithm:        enc.Get(fieldAlgorithm).String(),
		IV:               iv,
		Ciphertext:       ciphertext,
	}

	dataKey, err := d.dataKey(ctx, enc, &env)
	if err != nil {
		return domain.Envelope{}, err
	}

	env.Plaintext, err = cipher.Open(env.Algorithm, dataKey, iv, ciphertext)
	if err != nil {
		return domain.Envelope{}, apperrors.ErrDecryption.WithCause(err)
	}
	return env, nil
}

// dataKey returns the key embedded in version 1 envelopes, and asks the key
// service to unwrap it for every later version.
func (d *Decoder) dataKey(ctx context.Context, enc gjson.Result, env *domain.Envelope) ([]byte, error) {
	if enc.Get(fieldVersion).Int() == embeddedKeyVersion {
		return decodeField(enc, fieldPlaintextKey)
	}

	wrapped, err := decodeField(enc, fieldEncryptedKey)
	if err != nil {
		return nil, err
	}
	env.EncryptedKey = wrapped

	key, err := d.keys.ResolveDataKey(ctx, env.KeyEncryptionKey, wrapped)
	if err != nil {
		if keyservice.IsUnavailable(err) {
			return nil, err
		}
		return nil, apperrors.ErrKeyResolution.WithCause(err)
	}
	return key, nil
}

func decodeField(obj gjson.Result, name string) ([]byte, error) {
	v := obj.Get(name)
	if v.Type != gjson.String || v.String() == "" {
		return nil, apperrors.ErrMalformedEnvelope.WithMessage("%s is missing", name)
	}
	b, err := base64.StdEncoding.DecodeString(v.String())
	if err != nil {
		return nil, apperrors.ErrMalformedEnvelope.WithMessage("%s is not base64", name).WithCause(err)
	}
	return b, nil
}

// NaturalID reads message._id.<field>. The whole _id value is used only when
// no field is configured. A blank identifier reads as "".
func NaturalID(msg gjson.Result, field string) string {
	id := msg.Get(fieldID)
	if !id.Exists() || id.Type == gjson.Null {
		return ""
	}

	v := id
	if field != "" {
		if !id.IsObject() {
			return ""
		}
		v = child(id, field)
	}

	switch {
	case !v.Exists() || v.Type == gjson.Null:
		return ""
	case v.Type == gjson.String:
		if strings.TrimSpace(v.String()) == "" {
			return ""
		}
		return v.String()
	}
	return v.Raw
}

func timestamp(msg gjson.Result) (string, string) {
	for _, f := range timestampFields {
		v := msg.Get(f)
		if v.Type == gjson.String && strings.TrimSpace(v.String()) != "" {
			return v.String(), f
		}
		if v.IsObject() {
			// mongo extended JSON: {"$date": "..."}
			if date := child(v, "$date"); date.Type == gjson.String && date.String() != "" {
				return date.String(), f
			}
		}
	}
	return domain.EpochTimestamp, domain.EpochTimestampField
}

// child looks a key up literally, without gjson path syntax, so keys such
// as "@type" or "$date" are not read as modifiers.
func child(obj gjson.Result, key string) gjson.Result {
	var found gjson.Result
	obj.ForEach(func(k, v gjson.Result) bool {
		if k.String() == key {
			found = v
			return false
		}
		return true
	})
	return found
}
