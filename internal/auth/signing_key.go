package auth

import (
	"bytes"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
)

const signingKeyFile = "jwt.key"

// LoadOrCreateSigningKey returns the token signing key stored in dir,
// generating and persisting a 256-bit key when the file is missing or empty.
func LoadOrCreateSigningKey(dir string) ([]byte, error) {
	path := filepath.Join(dir, signingKeyFile)

	data, err := os.ReadFile(path) //nolint:gosec // dir comes from configuration
	if err == nil {
		if key := bytes.TrimSpace(data); len(key) > 0 {
			return key, nil
		}
	}

	return RotateSigningKey(dir)
}

// RotateSigningKey replaces the stored key. Every token signed with the
// previous key stops validating.
func RotateSigningKey(dir string) ([]byte, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return nil, fmt.Errorf("generate signing key: %w", err)
	}
	key := []byte(hex.EncodeToString(raw))

	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create key dir: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, signingKeyFile), key, 0600); err != nil {
		return nil, fmt.Errorf("write signing key: %w", err)
	}
	return key, nil
}
