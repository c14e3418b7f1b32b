package feed

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ArchiveFile moves a consumed raw input into dstDir and returns its new
// path. An existing file of the same name is kept; the moved file then gets
// a timestamp suffix.
func ArchiveFile(srcPath string, dstDir string, now time.Time) (string, error) {
	if strings.TrimSpace(dstDir) == "" {
		return "", errors.New("archive dir is empty")
	}
	if err := os.MkdirAll(dstDir, 0o755); err != nil {
		return "", err
	}
	dstPath := archiveTarget(srcPath, dstDir, now)

	if err := os.Rename(srcPath, dstPath); err == nil {
		return dstPath, nil
	}
	// Rename fails across devices.
	if err := copyFile(srcPath, dstPath); err != nil {
		return "", fmt.Errorf("archive %s: %w", srcPath, err)
	}
	if err := os.Remove(srcPath); err != nil {
		return "", err
	}
	return dstPath, nil
}

func archiveTarget(srcPath string, dstDir string, now time.Time) string {
	base := filepath.Base(srcPath)
	dst := filepath.Join(dstDir, base)
	if _, err := os.Stat(dst); err != nil {
		return dst
	}
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	return filepath.Join(dstDir, fmt.Sprintf("%s-%d%s", stem, now.UnixNano(), ext))
}

func copyFile(srcPath string, dstPath string) error {
	in, err := os.Open(srcPath)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dstPath)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		_ = os.Remove(dstPath)
		return err
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(dstPath)
		return err
	}
	return nil
}
