package decoder

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"claimant-consumer/internal/cipher"
	"claimant-consumer/internal/domain"
	"claimant-consumer/internal/keyservice"
	apperrors "claimant-consumer/pkg/errors"
)

func newKeys(t *testing.T) *keyservice.LocalService {
	t.Helper()
	master := make([]byte, 32)
	for i := range master {
		master[i] = byte(31 - i)
	}
	keys, err := keyservice.NewLocalService("kek", master)
	require.NoError(t, err)
	return keys
}

var idFields = map[string]string{
	"db.core.claimant":  "citizenId",
	"db.core.contract":  "contractId",
	"db.core.statement": "statementId",
}

func record(topic string, value []byte) domain.SourceRecord {
	return domain.SourceRecord{Topic: topic, Partition: 0, Offset: 42, Value: value}
}

func TestProcessRoundTrip(t *testing.T) {
	keys := newKeys(t)
	value, err := Seal(context.Background(), keys, Message{
		Type:         "MONGO_UPDATE",
		ID:           map[string]string{"citizenId": "c-1"},
		LastModified: "2020-01-01T00:00:00.000+0000",
		DBObject:     []byte(`{"_id":{"citizenId":"c-1"},"nino":"AA123456A"}`),
	})
	require.NoError(t, err)

	out := New(keys, idFields).Process(context.Background(), record("db.core.claimant", value))

	require.True(t, out.OK(), "%v", out.Failure)
	assert.Equal(t, domain.ActionUpdate, out.Value.Action)
	assert.Equal(t, "c-1", out.Value.ID)
	assert.Equal(t, "2020-01-01T00:00:00.000+0000", out.Value.Timestamp)
	assert.Equal(t, "_lastModifiedDateTime", out.Value.TimestampField)
	assert.Equal(t, "AA123456A", gjson.GetBytes(out.Value.Plaintext, "nino").String())
	assert.Equal(t, int64(42), out.Record.Offset)
}

func TestProcessEmbeddedKeyVersion(t *testing.T) {
	dataKey := []byte("0123456789abcdef0123456789abcdef")
	iv, ct, err := cipher.Seal(dataKey, []byte(`{"contractId":"k-9"}`))
	require.NoError(t, err)

	value, err := json.Marshal(map[string]interface{}{
		"message": map[string]interface{}{
			"@type":            "MONGO_INSERT",
			"_id":              map[string]string{"contractId": "k-9"},
			"_removedDateTime": "2021-02-03T04:05:06.000+0000",
			"dbObject":         base64.StdEncoding.EncodeToString(ct),
			"encryption": map[string]interface{}{
				"encryptionVersion":      1,
				"plaintextEncryptionKey": base64.StdEncoding.EncodeToString(dataKey),
				"initialisationVector":   base64.StdEncoding.EncodeToString(iv),
			},
		},
	})
	require.NoError(t, err)

	failing := &failingKeys{err: errors.New("must not be called")}
	out := New(failing, idFields).Process(context.Background(), record("db.core.contract", value))

	require.True(t, out.OK(), "%v", out.Failure)
	assert.Equal(t, domain.ActionInsert, out.Value.Action)
	assert.Equal(t, "k-9", out.Value.ID)
	assert.Equal(t, "_removedDateTime", out.Value.TimestampField)
	assert.Zero(t, failing.calls)
}

func TestProcessFailures(t *testing.T) {
	keys := newKeys(t)
	ctx := context.Background()

	sealed := func(typ string, dbObject string) []byte {
		v, err := Seal(ctx, keys, Message{Type: typ, ID: "x", DBObject: []byte(dbObject)})
		require.NoError(t, err)
		return v
	}

	tamper := func(v []byte, path string, value string) []byte {
		var doc map[string]interface{}
		require.NoError(t, json.Unmarshal(v, &doc))
		msg := doc["message"].(map[string]interface{})
		if path == "dbObject" {
			msg["dbObject"] = value
		} else {
			msg["encryption"].(map[string]interface{})[path] = value
		}
		out, err := json.Marshal(doc)
		require.NoError(t, err)
		return out
	}

	otherIV := base64.StdEncoding.EncodeToString(make([]byte, 12))

	tests := []struct {
		name  string
		value []byte
		want  *apperrors.Error
	}{
		{"not json", []byte("not-json"), apperrors.ErrMalformedEnvelope},
		{"no message", []byte(`{"other":1}`), apperrors.ErrMalformedEnvelope},
		{"no encryption", []byte(`{"message":{"dbObject":"AAAA"}}`), apperrors.ErrMalformedEnvelope},
		{"bad base64", tamper(sealed("MONGO_INSERT", `{}`), "dbObject", "%%%"), apperrors.ErrMalformedEnvelope},
		{"unknown wrapped key", tamper(sealed("MONGO_INSERT", `{}`), "encryptedEncryptionKey", base64.StdEncoding.EncodeToString([]byte("garbage-handle-garbage-handle"))), apperrors.ErrKeyResolution},
		{"wrong iv", tamper(sealed("MONGO_INSERT", `{}`), "initialisationVector", otherIV), apperrors.ErrDecryption},
		{"plaintext not json", sealed("MONGO_INSERT", `nope`), apperrors.ErrMalformedPlaintext},
		{"plaintext array", sealed("MONGO_INSERT", `[1,2]`), apperrors.ErrMalformedPlaintext},
		{"missing action", sealed("", `{}`), apperrors.ErrMissingAction},
		{"unknown action", sealed("MONGO_IMPORT", `{}`), apperrors.ErrMissingAction},
	}

	d := New(keys, idFields)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := record("db.core.claimant", tt.value)
			out := d.Process(ctx, rec)

			require.False(t, out.OK())
			assert.Equal(t, rec, out.Failure.Record)
			assert.ErrorIs(t, out.Failure.Cause, tt.want)
		})
	}
}

func TestProcessKeyServiceUnavailable(t *testing.T) {
	keys := newKeys(t)
	value, err := Seal(context.Background(), keys, Message{Type: "MONGO_INSERT", ID: "x", DBObject: []byte(`{}`)})
	require.NoError(t, err)

	down := &failingKeys{err: keyservice.ErrKeyServiceUnavailable.WithCause(errors.New("connection reset"))}
	out := New(down, idFields).Process(context.Background(), record("db.core.claimant", value))

	require.False(t, out.OK())
	assert.True(t, keyservice.IsUnavailable(out.Failure.Cause))
}

func TestNaturalID(t *testing.T) {
	tests := []struct {
		name  string
		doc   string
		field string
		want  string
	}{
		{"object field", `{"_id":{"citizenId":"c-1"}}`, "citizenId", "c-1"},
		{"numeric field", `{"_id":{"contractId":17}}`, "contractId", "17"},
		{"missing field", `{"_id":{"other":"x"}}`, "citizenId", ""},
		{"null field", `{"_id":{"citizenId":null}}`, "citizenId", ""},
		{"blank field", `{"_id":{"citizenId":"   "}}`, "citizenId", ""},
		{"scalar id with field configured", `{"_id":"abc"}`, "citizenId", ""},
		{"scalar id", `{"_id":"abc"}`, "", "abc"},
		{"blank scalar id", `{"_id":" "}`, "", ""},
		{"no field configured", `{"_id":{"a":"b"}}`, "", `{"a":"b"}`},
		{"absent", `{}`, "citizenId", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NaturalID(gjson.Parse(tt.doc), tt.field))
		})
	}
}

func TestTimestamp(t *testing.T) {
	tests := []struct {
		name      string
		doc       string
		wantValue string
		wantField string
	}{
		{"last modified", `{"_lastModifiedDateTime":"2020-01-01T00:00:00.000+0000","createdDateTimeStamp":"2019-01-01T00:00:00.000+0000"}`, "2020-01-01T00:00:00.000+0000", "_lastModifiedDateTime"},
		{"blank falls through", `{"_lastModifiedDateTime":"  ","createdDateTimeStamp":"2019-01-01T00:00:00.000+0000"}`, "2019-01-01T00:00:00.000+0000", "createdDateTimeStamp"},
		{"extended json", `{"_lastModifiedDateTime":{"$date":"2018-01-01T00:00:00.000Z"}}`, "2018-01-01T00:00:00.000Z", "_lastModifiedDateTime"},
		{"none", `{}`, domain.EpochTimestamp, domain.EpochTimestampField},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, f := timestamp(gjson.Parse(tt.doc))
			assert.Equal(t, tt.wantValue, v)
			assert.Equal(t, tt.wantField, f)
		})
	}
}

type failingKeys struct {
	err   error
	calls int
}

func (f *failingKeys) IssueDataKey(context.Context) (keyservice.DataKey, error) {
	f.calls++
	return keyservice.DataKey{}, f.err
}

func (f *failingKeys) ResolveDataKey(context.Context, string, []byte) ([]byte, error) {
	f.calls++
	return nil, f.err
}
