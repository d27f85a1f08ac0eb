package walletconnect

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"

	"faktoro.io/faktoro-relay/pkg/errors"
)

// Payload crypto per the WalletConnect v1 spec: AES-256-CBC with a fresh IV
// per message, authenticated by HMAC-SHA256 over ciphertext||iv.
// https://docs.walletconnect.com/1.0/tech-spec#cryptography

func Aes256Encrypt(content, encryptionKey, iv []byte) ([]byte, error) {
	plaintext := pkcs7Padding(content, aes.BlockSize)
	block, err := aes.NewCipher(encryptionKey)
	if err != nil {
		return nil, errors.Wrap(err, "create new cipher block")
	}
	ciphertext := make([]byte, len(plaintext))
	mode := cipher.NewCBCEncrypter(block, iv)
	mode.CryptBlocks(ciphertext, plaintext)
	return ciphertext, nil
}

func Aes256Decrypt(cipherText, encryptionKey, iv []byte) ([]byte, error) {
	if len(cipherText) == 0 || len(cipherText)%aes.BlockSize != 0 {
		return nil, errors.New("ciphertext not block aligned")
	}
	block, err := aes.NewCipher(encryptionKey)
	if err != nil {
		return nil, errors.Wrap(err, "create new cipher block")
	}
	plaintext := make([]byte, len(cipherText))
	mode := cipher.NewCBCDecrypter(block, iv)
	mode.CryptBlocks(plaintext, cipherText)
	return pkcs7Unpadding(plaintext)
}

func pkcs7Padding(text []byte, blockSize int) []byte {
	padding := blockSize - len(text)%blockSize
	padText := bytes.Repeat([]byte{byte(padding)}, padding)
	return append(text, padText...)
}

func pkcs7Unpadding(text []byte) ([]byte, error) {
	padding := int(text[len(text)-1])
	if padding == 0 || padding > aes.BlockSize || padding > len(text) {
		return nil, errors.New("invalid padding")
	}
	for _, b := range text[len(text)-padding:] {
		if int(b) != padding {
			return nil, errors.New("invalid padding")
		}
	}
	return text[:len(text)-padding], nil
}

func GenerateRandomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, err
	}
	return b, nil
}

func HmacSha256(data, secret []byte) []byte {
	h := hmac.New(sha256.New, secret)
	h.Write(data)
	return h.Sum(nil)
}

// HmacEqual compares two MACs in constant time.
func HmacEqual(a, b []byte) bool {
	return hmac.Equal(a, b)
}
