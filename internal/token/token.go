package token

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

var ErrEmpty = errors.New("token file is empty")

// Read loads a secret from path, trimming surrounding whitespace. A missing
// file or one holding only whitespace is an error.
func Read(path string) (string, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("token file not found: %s: %w", path, err)
	}
	if err != nil {
		return "", fmt.Errorf("reading token file %s: %w", path, err)
	}

	tok := strings.TrimSpace(string(data))
	if tok == "" {
		return "", fmt.Errorf("%s: %w", path, ErrEmpty)
	}
	return tok, nil
}

// Resolve prefers an explicit value and falls back to reading path.
func Resolve(value, path string) (string, error) {
	if value != "" || path == "" {
		return value, nil
	}
	return Read(path)
}
