package security

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

// Exchange credentials are stored AES-256-CBC encrypted. The envelope is
// base64("<base64 ciphertext>::<raw iv>"), so the same key decrypts rows
// written by the admin side.

const keySize = 32

var ErrMalformedPayload = errors.New("security: malformed encrypted payload")

// deriveKey normalizes an arbitrary passphrase into a 32 byte AES key.
// A passphrase that is already exactly 32 bytes is used as-is.
func deriveKey(passphrase string) []byte {
	if len(passphrase) == keySize {
		return []byte(passphrase)
	}
	return pbkdf2.Key([]byte(passphrase), []byte("flinkbot-credentials"), 4096, keySize, sha256.New)
}

// Encrypt encrypts plaintext with AES-256-CBC under the given passphrase.
func Encrypt(data, key string) (string, error) {
	block, err := aes.NewCipher(deriveKey(key))
	if err != nil {
		return "", fmt.Errorf("security: %w", err)
	}

	iv := make([]byte, aes.BlockSize)
	if _, err := rand.Read(iv); err != nil {
		return "", fmt.Errorf("security: %w", err)
	}

	padded := pkcs7Pad([]byte(data), aes.BlockSize)
	encrypted := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(encrypted, padded)

	inner := base64.StdEncoding.EncodeToString(encrypted) + "::" + string(iv)

	return base64.StdEncoding.EncodeToString([]byte(inner)), nil
}

// Decrypt reverses Encrypt. It fails on a malformed envelope, a wrong key
// usually surfaces as a padding error.
func Decrypt(data, key string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return "", fmt.Errorf("security: %w", err)
	}

	// The ciphertext part is base64 and never contains a colon, so the
	// first separator is always the real one even if the iv contains "::".
	parts := strings.SplitN(string(raw), "::", 2)
	if len(parts) != 2 || len(parts[1]) != aes.BlockSize {
		return "", ErrMalformedPayload
	}

	encrypted, err := base64.StdEncoding.DecodeString(parts[0])
	if err != nil {
		return "", fmt.Errorf("security: %w", err)
	}
	if len(encrypted) == 0 || len(encrypted)%aes.BlockSize != 0 {
		return "", ErrMalformedPayload
	}

	block, err := aes.NewCipher(deriveKey(key))
	if err != nil {
		return "", fmt.Errorf("security: %w", err)
	}

	plain := make([]byte, len(encrypted))
	cipher.NewCBCDecrypter(block, []byte(parts[1])).CryptBlocks(plain, encrypted)

	plain, err = pkcs7Unpad(plain, aes.BlockSize)
	if err != nil {
		return "", err
	}

	return string(plain), nil
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	padding := blockSize - len(data)%blockSize
	return append(data, bytes.Repeat([]byte{byte(padding)}, padding)...)
}

func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, ErrMalformedPayload
	}

	padding := int(data[len(data)-1])
	if padding == 0 || padding > blockSize || padding > len(data) {
		return nil, ErrMalformedPayload
	}

	for _, b := range data[len(data)-padding:] {
		if int(b) != padding {
			return nil, ErrMalformedPayload
		}
	}

	return data[:len(data)-padding], nil
}
