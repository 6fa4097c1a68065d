package cryptox

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// LoadOrGenerateKeyFile returns the key stored at path. When the file does not
// exist a new random key of size bytes is generated, written with 0600
// permissions and returned. Keys are kept base64url encoded on disk.
func LoadOrGenerateKeyFile(path string, size int) (string, error) {
	path = filepath.Clean(path)

	data, err := os.ReadFile(path)
	if err == nil {
		key := strings.TrimSpace(string(data))
		if key == "" {
			return "", fmt.Errorf("cryptox: key file %s is empty", path)
		}
		return key, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("cryptox: read key file: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return "", fmt.Errorf("cryptox: create key dir: %w", err)
	}

	key, err := GenerateToken(size)
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(path, []byte(key), 0600); err != nil {
		return "", fmt.Errorf("cryptox: write key file: %w", err)
	}
	return key, nil
}
