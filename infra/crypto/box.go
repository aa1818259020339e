// Package crypto opens and seals controller credential blobs.
//
// Blob layout: "v1:" + base64(salt[16] || nonce[12] || ciphertext).
// The per-blob AES-256-GCM key is derived from the master key with
// HKDF-SHA256 over the salt. The plaintext is a JSON object of strings.
package crypto

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/hkdf"

	"github.com/bselee/enviroflow/core/credentials"
)

const (
	prefixV1 = "v1:"
	saltSize = 16
	keySize  = 32
	info     = "enviroflow:credentials:v1"
)

// ErrMalformed is returned for blobs that cannot be parsed or authenticated.
var ErrMalformed = errors.New("malformed credential blob")

// Box seals and opens credential blobs with a master key.
type Box struct {
	master []byte
	rand   io.Reader
}

var _ credentials.Decrypter = (*Box)(nil)

// NewBox creates a Box. The master key must be at least 32 bytes.
func NewBox(master []byte) (*Box, error) {
	if len(master) < keySize {
		return nil, fmt.Errorf("master key must be at least %d bytes, got %d", keySize, len(master))
	}
	k := make([]byte, len(master))
	copy(k, master)
	return &Box{master: k, rand: rand.Reader}, nil
}

// NewBoxFromBase64 decodes a standard base64 master key.
func NewBoxFromBase64(s string) (*Box, error) {
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("decode master key: %w", err)
	}
	return NewBox(raw)
}

func (b *Box) aead(salt []byte) (cipher.AEAD, error) {
	key := make([]byte, keySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, b.master, salt, []byte(info)), key); err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// Encrypt seals creds into a blob.
func (b *Box) Encrypt(creds credentials.Credentials) (string, error) {
	plain, err := json.Marshal(creds)
	if err != nil {
		return "", err
	}
	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(b.rand, salt); err != nil {
		return "", err
	}
	gcm, err := b.aead(salt)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(b.rand, nonce); err != nil {
		return "", err
	}
	out := make([]byte, 0, saltSize+len(nonce)+len(plain)+gcm.Overhead())
	out = append(out, salt...)
	out = append(out, nonce...)
	out = gcm.Seal(out, nonce, plain, []byte(prefixV1))
	return prefixV1 + base64.StdEncoding.EncodeToString(out), nil
}

// Decrypt opens a blob. A wrong key and a tampered blob both yield ErrMalformed.
func (b *Box) Decrypt(_ context.Context, blob string) (credentials.Credentials, error) {
	if !strings.HasPrefix(blob, prefixV1) {
		return nil, fmt.Errorf("%w: unknown version", ErrMalformed)
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(blob, prefixV1))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if len(raw) < saltSize {
		return nil, fmt.Errorf("%w: too short", ErrMalformed)
	}
	gcm, err := b.aead(raw[:saltSize])
	if err != nil {
		return nil, err
	}
	rest := raw[saltSize:]
	if len(rest) < gcm.NonceSize()+gcm.Overhead() {
		return nil, fmt.Errorf("%w: too short", ErrMalformed)
	}
	nonce, ct := rest[:gcm.NonceSize()], rest[gcm.NonceSize():]
	plain, err := gcm.Open(nil, nonce, ct, []byte(prefixV1))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	var creds credentials.Credentials
	if err := json.Unmarshal(plain, &creds); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return creds, nil
}
