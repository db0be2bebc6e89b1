package cipher

import (
	"crypto/aes"
	stdcipher "crypto/cipher"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var key = []byte("0123456789abcdef0123456789abcdef")

func TestSealOpen(t *testing.T) {
	iv, ct, err := Seal(key, []byte(`{"nino":"AA123456A"}`))
	require.NoError(t, err)
	assert.Len(t, iv, 12)

	for _, alg := range []string{"", AlgorithmGCM, "AES/GCM/NOPADDING", "aes/gcm/nopadding", " AES/GCM/NoPadding ", "AES/GCM", "aes-gcm"} {
		pt, err := Open(alg, key, iv, ct)
		require.NoError(t, err, alg)
		assert.Equal(t, `{"nino":"AA123456A"}`, string(pt))
	}
}

func TestOpenWrongKey(t *testing.T) {
	iv, ct, err := Seal(key, []byte("secret"))
	require.NoError(t, err)

	other := []byte("fedcba9876543210fedcba9876543210")
	_, err = Open(AlgorithmGCM, other, iv, ct)
	assert.Error(t, err)
}

func TestOpenCTR(t *testing.T) {
	iv := []byte("0000111122223333")
	block, err := aes.NewCipher(key)
	require.NoError(t, err)
	ct := make([]byte, 6)
	stdcipher.NewCTR(block, iv).XORKeyStream(ct, []byte("legacy"))

	for _, alg := range []string{AlgorithmCTR, "aes/ctr/nopadding", "AES/CTR", "AES-CTR"} {
		pt, err := Open(alg, key, iv, ct)
		require.NoError(t, err, alg)
		assert.Equal(t, "legacy", string(pt))
	}

	_, err = Open(AlgorithmCTR, key, iv[:8], ct)
	assert.Error(t, err)
}

func TestNormalise(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", AlgorithmGCM},
		{AlgorithmGCM, AlgorithmGCM},
		{"AES/GCM/NOPADDING", AlgorithmGCM},
		{AlgorithmCTR, AlgorithmCTR},
		{"aes/ctr/nopadding", AlgorithmCTR},
		{"DES/ECB", "DES/ECB"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, normalise(tt.in), tt.in)
	}
}

func TestOpenRejects(t *testing.T) {
	_, err := Open("DES/ECB", key, []byte("iv"), []byte("x"))
	assert.Error(t, err)

	_, err = Open(AlgorithmGCM, key, nil, []byte("x"))
	assert.Error(t, err)

	_, err = Open(AlgorithmGCM, []byte("short"), []byte("iv"), []byte("x"))
	assert.Error(t, err)
}
