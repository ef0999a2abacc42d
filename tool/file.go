package tool

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

var (
	unsafeFilenameChars = regexp.MustCompile(`[<>:"/\\|?*]`)
	whitespaceRun       = regexp.MustCompile(`\s+`)
)

// SanitizeFilename strips characters that are unsafe on Windows or Linux and
// collapses whitespace.
func SanitizeFilename(name string) string {
	name = unsafeFilenameChars.ReplaceAllString(name, "")
	name = whitespaceRun.ReplaceAllString(name, " ")
	return strings.TrimSpace(name)
}

// HumanReadableSize formats a byte count, e.g. 52428800 -> "50.00 MB".
func HumanReadableSize(size int64) string {
	value := float64(size)
	for _, unit := range []string{"B", "KB", "MB", "GB", "TB"} {
		if value < 1024.0 {
			return fmt.Sprintf("%.2f %s", value, unit)
		}
		value /= 1024.0
	}
	return fmt.Sprintf("%.2f PB", value)
}

// CleanupDir removes path and everything below it. Missing paths are fine.
func CleanupDir(path string) {
	if path == "" {
		return
	}
	if err := os.RemoveAll(path); err != nil {
		DefaultLogger.Errorf("Error cleaning up %s: %v", path, err)
	}
}

// CleanupDownloadDir empties the download directory, creating it if needed.
func CleanupDownloadDir(downloadPath string) error {
	entries, err := os.ReadDir(downloadPath)
	if err != nil {
		if os.IsNotExist(err) {
			return os.MkdirAll(downloadPath, 0o755)
		}
		return fmt.Errorf("failed to read download directory: %v", err)
	}
	for _, entry := range entries {
		if err := os.RemoveAll(filepath.Join(downloadPath, entry.Name())); err != nil {
			return fmt.Errorf("failed to clean %s: %v", entry.Name(), err)
		}
	}
	DefaultLogger.Infof("Cleaned up download directory: %s", downloadPath)
	return nil
}

// LargestFile returns the biggest regular file directly inside dir.
func LargestFile(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("failed to read directory: %v", err)
	}
	var (
		best     string
		bestSize int64 = -1
	)
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.Size() > bestSize {
			best = filepath.Join(dir, entry.Name())
			bestSize = info.Size()
		}
	}
	if best == "" {
		return "", fmt.Errorf("no file found in %s", dir)
	}
	return best, nil
}
