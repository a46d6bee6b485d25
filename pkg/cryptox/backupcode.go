package cryptox

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
)

// Crockford-ish alphabet without 0/O and 1/I/L to keep codes readable aloud.
const backupCodeAlphabet = "23456789ABCDEFGHJKMNPQRSTUVWXYZ"

// GenerateBackupCode returns a single-use recovery code shaped XXXX-XXXX.
func GenerateBackupCode() (string, error) {
	var b strings.Builder
	b.Grow(9)
	max := big.NewInt(int64(len(backupCodeAlphabet)))
	for i := range 8 {
		if i == 4 {
			b.WriteByte('-')
		}
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("failed to generate backup code: %w", err)
		}
		b.WriteByte(backupCodeAlphabet[n.Int64()])
	}
	return b.String(), nil
}

// NormalizeBackupCode upper-cases the input and strips separators and
// whitespace so "abcd efgh" and "ABCD-EFGH" hash identically.
func NormalizeBackupCode(code string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '-', ' ', '\t':
			return -1
		}
		if r >= 'a' && r <= 'z' {
			return r - ('a' - 'A')
		}
		return r
	}, code)
}
