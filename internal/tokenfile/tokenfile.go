// Package tokenfile manages the broker's persistent auth token: a single
// line of 64 base62 characters stored under ~/.ptybroker/, generated on
// first use and guarded by an advisory lock so concurrent brokers don't
// race each other into generating two different tokens.
package tokenfile

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

const tokenLength = 64

const base62Alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// Dir returns the broker's configuration directory (~/.ptybroker/),
// matching the convention the rest of the broker's on-disk state uses.
func Dir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".ptybroker")
	}
	return filepath.Join(home, ".ptybroker")
}

// Path returns the default token file location: ~/.ptybroker/broker.token.
func Path() string {
	return filepath.Join(Dir(), "broker.token")
}

// LoadOrCreate reads the token at path, generating and persisting a new one
// if the file doesn't exist. An flock-based lock on a sibling ".lock" file
// serializes concurrent first-run generation across processes.
func LoadOrCreate(path string) (string, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return "", fmt.Errorf("tokenfile: create dir: %w", err)
	}

	lock := flock.New(path + ".lock")
	if err := lock.Lock(); err != nil {
		return "", fmt.Errorf("tokenfile: acquire lock: %w", err)
	}
	defer lock.Unlock()

	data, err := os.ReadFile(path)
	if err == nil {
		return trimNewline(data), nil
	}
	if !os.IsNotExist(err) {
		return "", fmt.Errorf("tokenfile: read: %w", err)
	}

	token, err := generate()
	if err != nil {
		return "", err
	}
	if err := writeAtomic(path, token); err != nil {
		return "", err
	}
	return token, nil
}

func generate() (string, error) {
	buf := make([]byte, tokenLength)
	for i := range buf {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(base62Alphabet))))
		if err != nil {
			return "", fmt.Errorf("tokenfile: random generation: %w", err)
		}
		buf[i] = base62Alphabet[n.Int64()]
	}
	return string(buf), nil
}

// writeAtomic writes token to path via a temp file + rename so a reader
// never observes a partially written token, with owner-only permissions.
func writeAtomic(path, token string) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".broker-token-*")
	if err != nil {
		return fmt.Errorf("tokenfile: create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op once renamed

	if _, err := tmp.WriteString(token + "\n"); err != nil {
		tmp.Close()
		return fmt.Errorf("tokenfile: write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("tokenfile: sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("tokenfile: close temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, 0o600); err != nil {
		return fmt.Errorf("tokenfile: chmod: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("tokenfile: rename into place: %w", err)
	}
	return nil
}

func trimNewline(data []byte) string {
	for len(data) > 0 && (data[len(data)-1] == '\n' || data[len(data)-1] == '\r') {
		data = data[:len(data)-1]
	}
	return string(data)
}
