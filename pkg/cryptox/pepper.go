package cryptox

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// Argon2id parameters. Backup codes and passwords share them.
const (
	memory      = 19 * 1024 // KiB
	iterations  = 2
	parallelism = 1
	keyLength   = 32
	saltLength  = 16
)

var (
	pepperMu sync.RWMutex
	pepper   string
)

// LoadPepper reads the pepper at path, generating and persisting a fresh one
// when the file does not exist yet. It must run before the first hash in
// production; otherwise an ephemeral pepper is used.
func LoadPepper(path string) error {
	if path == "" {
		return errors.New("cryptox: pepper path is empty")
	}

	value, err := loadOrGeneratePepper(filepath.Clean(path))
	if err != nil {
		return fmt.Errorf("failed to load pepper: %w", err)
	}

	pepperMu.Lock()
	pepper = value
	pepperMu.Unlock()
	return nil
}

func currentPepper() string {
	pepperMu.RLock()
	p := pepper
	pepperMu.RUnlock()
	if p != "" {
		return p
	}

	pepperMu.Lock()
	defer pepperMu.Unlock()
	if pepper == "" {
		buf := make([]byte, keyLength)
		if _, err := rand.Read(buf); err != nil {
			panic(fmt.Sprintf("cryptox: failed to generate pepper: %v", err))
		}
		pepper = base64.RawURLEncoding.EncodeToString(buf)
		slog.Warn("no pepper loaded, using an ephemeral one; hashes will not survive restart")
	}
	return pepper
}

func loadOrGeneratePepper(path string) (string, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return "", err
	}

	data, err := os.ReadFile(path)
	if err == nil {
		if len(data) == 0 {
			return "", fmt.Errorf("pepper file %s is empty", path)
		}
		return string(data), nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return "", err
	}

	buf := make([]byte, keyLength)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	value := base64.RawURLEncoding.EncodeToString(buf)
	if err := os.WriteFile(path, []byte(value), 0o600); err != nil {
		return "", err
	}
	return value, nil
}
