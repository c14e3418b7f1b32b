package feed

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
)

// DigestContent returns the hex SHA-256 of raw feed content.
func DigestContent(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// DigestFile streams path through SHA-256.
func DigestFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// ShortDigest truncates a hex digest for log lines and labels.
func ShortDigest(full string, hexLen int) string {
	if hexLen <= 0 || hexLen >= len(full) {
		return full
	}
	return full[:hexLen]
}
