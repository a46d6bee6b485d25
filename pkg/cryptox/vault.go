package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// ErrCiphertext is returned when sealed data is truncated, tampered with or
// was sealed under another master key.
var ErrCiphertext = errors.New("cryptox: invalid ciphertext")

// Vault seals tenant secrets at rest (directory bind passwords, OIDC client
// secrets, TOTP seeds) with AES-256-GCM. Output is base64(nonce||ct||tag).
type Vault struct {
	aead cipher.AEAD
}

// NewVault derives the AES key from arbitrary key material via SHA-256.
func NewVault(material []byte) (*Vault, error) {
	if len(material) == 0 {
		return nil, errors.New("cryptox: empty vault key material")
	}

	key := sha256.Sum256(material)
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return &Vault{aead: aead}, nil
}

// LoadVault builds a Vault from the file at path, falling back to the value
// of envKey. With neither present an ephemeral key is generated, which is
// only acceptable in development.
func LoadVault(path, envValue string) (*Vault, error) {
	var material []byte
	switch {
	case path != "":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read master key file: %w", err)
		}
		material = []byte(strings.TrimSpace(string(data)))
	case envValue != "":
		material = []byte(envValue)
	default:
		material = make([]byte, 32)
		if _, err := rand.Read(material); err != nil {
			return nil, fmt.Errorf("failed to generate ephemeral master key: %w", err)
		}
		slog.Warn("no master key configured, sealed secrets will not survive restart")
	}
	return NewVault(material)
}

// Encrypt seals plaintext with a fresh random nonce.
func (v *Vault) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, v.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	out := v.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(out), nil
}

// Decrypt reverses Encrypt.
func (v *Vault) Decrypt(sealed string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrCiphertext, err)
	}

	ns := v.aead.NonceSize()
	if len(raw) < ns+v.aead.Overhead() {
		return "", fmt.Errorf("%w: too short", ErrCiphertext)
	}

	plain, err := v.aead.Open(nil, raw[:ns], raw[ns:], nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrCiphertext, err)
	}
	return string(plain), nil
}
