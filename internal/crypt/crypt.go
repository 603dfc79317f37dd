// Package crypt encrypts individual store fields with AES-256-CBC and
// PKCS#7 padding. The key material is 48 base64-encoded bytes: a 32-byte
// AES key followed by a 16-byte IV.
package crypt

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"os"
)

// EnvVar is the environment variable the key is read from.
const EnvVar = "ENCRYPTION_KEY"

const (
	keyBytes = 32
	ivBytes  = 16
)

// Key holds parsed AES key material.
type Key struct {
	key []byte
	iv  []byte
}

// ParseKey decodes a base64 key string into a Key.
func ParseKey(s string) (Key, error) {
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return Key{}, fmt.Errorf("decode encryption key: %w", err)
	}
	if len(data) != keyBytes+ivBytes {
		return Key{}, fmt.Errorf("encryption key must be %d bytes, got %d", keyBytes+ivBytes, len(data))
	}
	return Key{key: data[:keyBytes], iv: data[keyBytes:]}, nil
}

// KeyFromEnv reads and parses the key from the environment.
func KeyFromEnv() (Key, error) {
	s := os.Getenv(EnvVar)
	if s == "" {
		return Key{}, fmt.Errorf("%s is not set", EnvVar)
	}
	return ParseKey(s)
}

// GenerateKey returns a fresh random key in its base64 string form.
func GenerateKey() (string, error) {
	data := make([]byte, keyBytes+ivBytes)
	if _, err := rand.Read(data); err != nil {
		return "", fmt.Errorf("generate encryption key: %w", err)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// Encrypt encrypts plaintext and returns base64 ciphertext.
func (k Key) Encrypt(plaintext string) (string, error) {
	block, err := aes.NewCipher(k.key)
	if err != nil {
		return "", fmt.Errorf("init cipher: %w", err)
	}

	padded := pkcs7Pad([]byte(plaintext), aes.BlockSize)
	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, k.iv).CryptBlocks(out, padded)
	return base64.StdEncoding.EncodeToString(out), nil
}

// Decrypt decrypts base64 ciphertext produced by Encrypt.
func (k Key) Decrypt(ciphertext string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("decode ciphertext: %w", err)
	}
	if len(data) == 0 || len(data)%aes.BlockSize != 0 {
		return "", fmt.Errorf("ciphertext length %d is not a multiple of the block size", len(data))
	}

	block, err := aes.NewCipher(k.key)
	if err != nil {
		return "", fmt.Errorf("init cipher: %w", err)
	}

	out := make([]byte, len(data))
	cipher.NewCBCDecrypter(block, k.iv).CryptBlocks(out, data)

	unpadded, err := pkcs7Unpad(out, aes.BlockSize)
	if err != nil {
		return "", err
	}
	return string(unpadded), nil
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	n := blockSize - len(data)%blockSize
	return append(data, bytes.Repeat([]byte{byte(n)}, n)...)
}

func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty padded data")
	}
	n := int(data[len(data)-1])
	if n == 0 || n > blockSize || n > len(data) {
		return nil, fmt.Errorf("invalid padding")
	}
	for _, b := range data[len(data)-n:] {
		if int(b) != n {
			return nil, fmt.Errorf("invalid padding")
		}
	}
	return data[:len(data)-n], nil
}
