package transformer

import (
	"context"
	"crypto/sha512"
	"encoding/base64"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"claimant-consumer/internal/cipher"
	"claimant-consumer/internal/config"
	"claimant-consumer/internal/keyservice"
)

func localKeys(t *testing.T) *keyservice.LocalService {
	t.Helper()
	keys, err := keyservice.NewLocalService("kek", make([]byte, 32))
	require.NoError(t, err)
	return keys
}

func TestClaimantTransform(t *testing.T) {
	salted := sha512.Sum512([]byte("AA123456A" + "salt"))

	tests := []struct {
		name     string
		salt     string
		doc      string
		wantNino gjson.Result
		wantErr  bool
	}{
		{"hashes with salt", "salt", `{"_id":{"citizenId":"c1"},"nino":"AA123456A"}`, gjson.Parse(`"` + hex.EncodeToString(salted[:]) + `"`), false},
		{"keeps without salt", "", `{"_id":{"citizenId":"c1"},"nino":"AA123456A"}`, gjson.Parse(`"AA123456A"`), false},
		{"blank stays blank", "salt", `{"_id":{"citizenId":"c1"},"nino":"   "}`, gjson.Parse(`""`), false},
		{"absent stays absent", "salt", `{"_id":{"citizenId":"c1"}}`, gjson.Result{}, false},
		{"missing citizen id", "salt", `{"nino":"AA123456A"}`, gjson.Result{}, true},
		{"not an object", "salt", `[]`, gjson.Result{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := NewClaimant(tt.salt).Transform(context.Background(), []byte(tt.doc))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "c1", gjson.GetBytes(out, "citizen_id").String())
			nino := gjson.GetBytes(out, "nino")
			assert.Equal(t, tt.wantNino.Exists(), nino.Exists())
			assert.Equal(t, tt.wantNino.String(), nino.String())
		})
	}
}

func TestContractTransform(t *testing.T) {
	doc := `{"_id":{"contractId":"k1"},"people":["c1","c2"],"startDate":20200101,"closedDate":null}`

	out, err := Contract{}.Transform(context.Background(), []byte(doc))
	require.NoError(t, err)

	res := gjson.ParseBytes(out)
	assert.Equal(t, "k1", res.Get("contract_id").String())
	assert.Equal(t, `["c1","c2"]`, res.Get("citizen_ids").Raw)
	assert.Equal(t, int64(20200101), res.Get("start_date").Int())
	assert.Equal(t, gjson.Null, res.Get("closed_date").Type)

	_, err = Contract{}.Transform(context.Background(), []byte(`{"people":[]}`))
	assert.Error(t, err)
}

func TestStatementTransformEncryptsTakeHomePay(t *testing.T) {
	keys := localKeys(t)
	doc := `{"_id":{"statementId":"s1"},"people":["c1"],"assessmentPeriod":{"startDate":"2020-01-01","endDate":"2020-01-31"},"takeHomePay":"1234.56"}`

	out, err := NewStatement(keys).Transform(context.Background(), []byte(doc))
	require.NoError(t, err)

	res := gjson.ParseBytes(out)
	assert.Equal(t, "s1", res.Get("statement_id").String())
	assert.Equal(t, "c1", res.Get("citizen_id").String())
	assert.Equal(t, "2020-01-31", res.Get("ap_end_date").String())
	assert.NotContains(t, string(out), "1234.56")

	pay := res.Get("take_home_pay")
	handle, err := base64.StdEncoding.DecodeString(pay.Get("encrypted_key").String())
	require.NoError(t, err)
	dataKey, err := keys.ResolveDataKey(context.Background(), pay.Get("encryption_id").String(), handle)
	require.NoError(t, err)

	iv, _ := base64.StdEncoding.DecodeString(pay.Get("iv").String())
	ct, _ := base64.StdEncoding.DecodeString(pay.Get("ciphertext").String())
	plaintext, err := cipher.Open(cipher.AlgorithmGCM, dataKey, iv, ct)
	require.NoError(t, err)
	assert.Equal(t, "1234.56", string(plaintext))
}

func TestStatementWithoutTakeHomePay(t *testing.T) {
	out, err := NewStatement(localKeys(t)).Transform(context.Background(), []byte(`{"statementId":"s2"}`))
	require.NoError(t, err)
	assert.Equal(t, "s2", gjson.GetBytes(out, "statement_id").String())
	assert.Equal(t, gjson.Null, gjson.GetBytes(out, "take_home_pay").Type)
}

func TestPassthrough(t *testing.T) {
	out, err := Passthrough{}.Transform(context.Background(), []byte("{ \"a\" : 1 }"))
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, string(out))

	_, err = Passthrough{}.Transform(context.Background(), []byte(`"scalar"`))
	assert.Error(t, err)
}

func TestFromConfig(t *testing.T) {
	topics := []config.TopicConfig{
		{Name: "db.core.claimant", Transformer: "claimant"},
		{Name: "db.core.contract", Transformer: "contract"},
		{Name: "db.core.statement", Transformer: "statement"},
		{Name: "db.core.other", Transformer: "passthrough"},
		{Name: "db.core.untransformed"},
	}

	r, err := FromConfig(topics, localKeys(t), "salt")
	require.NoError(t, err)
	assert.Equal(t, 4, r.Len())

	_, ok := r.Lookup("db.core.untransformed")
	assert.False(t, ok)

	tr, ok := r.Lookup("db.core.contract")
	require.True(t, ok)
	assert.IsType(t, Contract{}, tr)

	_, err = FromConfig([]config.TopicConfig{{Name: "x", Transformer: "hbase"}}, nil, "")
	assert.Error(t, err)
}
