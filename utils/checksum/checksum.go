// Package checksum fingerprints data files so out-of-band modification
// can be detected between runs without hashing the file contents.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
)

// Generate returns a SHA-256 checksum derived from the file's size and
// modification time.
func Generate(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("checksum: stat %s: %w", path, err)
	}
	input := fmt.Sprintf("%d%d", info.Size(), info.ModTime().UnixNano())
	sum := sha256.Sum256([]byte(input))
	return hex.EncodeToString(sum[:]), nil
}

// CheckOrCreate compares the data file's checksum against the stored one.
// It returns true when they match. When the checksum file is missing or
// stale the current checksum is written and false is returned.
func CheckOrCreate(dataPath, checksumPath string) (bool, error) {
	generated, err := Generate(dataPath)
	if err != nil {
		return false, err
	}

	stored, err := os.ReadFile(checksumPath)
	if err == nil && strings.TrimSpace(string(stored)) == generated {
		return true, nil
	}
	if err != nil && !os.IsNotExist(err) {
		return false, fmt.Errorf("checksum: read %s: %w", checksumPath, err)
	}

	if err := os.WriteFile(checksumPath, []byte(generated), 0o644); err != nil {
		return false, fmt.Errorf("checksum: write %s: %w", checksumPath, err)
	}
	return false, nil
}
