// Package cipher implements the symmetric layer of envelope encryption.
package cipher

import (
	"crypto/aes"
	stdcipher "crypto/cipher"
	"crypto/rand"
	"fmt"
	"strings"
)

const (
	AlgorithmGCM = "AES/GCM/NoPadding"
	AlgorithmCTR = "AES/CTR/NoPadding"
)

const gcmNonceSize = 12

// Seal encrypts plaintext with AES-GCM under a fresh random IV.
func Seal(key, plaintext []byte) (iv, ciphertext []byte, err error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, nil, err
	}
	aead, err := stdcipher.NewGCM(block)
	if err != nil {
		return nil, nil, err
	}

	iv = make([]byte, gcmNonceSize)
	if _, err := rand.Read(iv); err != nil {
		return nil, nil, err
	}
	return iv, aead.Seal(nil, iv, plaintext, nil), nil
}

// Open decrypts ciphertext with the named algorithm. An empty algorithm means GCM.
func Open(algorithm string, key, iv, ciphertext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	switch normalise(algorithm) {
	case AlgorithmGCM:
		if len(iv) == 0 {
			return nil, fmt.Errorf("missing initialisation vector")
		}
		aead, err := stdcipher.NewGCMWithNonceSize(block, len(iv))
		if err != nil {
			return nil, err
		}
		return aead.Open(nil, iv, ciphertext, nil)
	case AlgorithmCTR:
		if len(iv) != block.BlockSize() {
			return nil, fmt.Errorf("initialisation vector must be %d bytes, got %d", block.BlockSize(), len(iv))
		}
		plaintext := make([]byte, len(ciphertext))
		stdcipher.NewCTR(block, iv).XORKeyStream(plaintext, ciphertext)
		return plaintext, nil
	default:
		return nil, fmt.Errorf("unsupported algorithm %q", algorithm)
	}
}

// normalise maps any spelling of a supported tag onto its constant.
func normalise(algorithm string) string {
	a := strings.TrimSpace(algorithm)
	switch strings.ToUpper(a) {
	case "", "AES/GCM", "AES-GCM", strings.ToUpper(AlgorithmGCM):
		return AlgorithmGCM
	case "AES/CTR", "AES-CTR", strings.ToUpper(AlgorithmCTR):
		return AlgorithmCTR
	}
	return a
}
