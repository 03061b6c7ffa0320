package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"go.uber.org/zap"
)

var unsafeSegment = regexp.MustCompile(`[^a-zA-Z0-9._\-]`)

// DiskArchive keeps exported documents under a base directory. Writes go to
// a temp file first and are renamed into place.
type DiskArchive struct {
	baseDir string
	logger  *zap.Logger
}

// NewDiskArchive creates an archive rooted at baseDir
func NewDiskArchive(baseDir string, logger *zap.Logger) *DiskArchive {
	return &DiskArchive{baseDir: baseDir, logger: logger}
}

// Save writes content to the relative path, replacing any earlier copy
func (a *DiskArchive) Save(ctx context.Context, path string, content []byte) error {
	fullPath, err := a.resolve(path)
	if err != nil {
		return err
	}

	dir := filepath.Dir(fullPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directories: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".upload-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to write file: %w", err)
	}
	if err := os.Rename(tmpName, fullPath); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to move file into place: %w", err)
	}

	a.logger.Debug("Archived file", zap.String("path", fullPath), zap.Int("size", len(content)))
	return nil
}

// Read returns the content stored at the relative path
func (a *DiskArchive) Read(ctx context.Context, path string) ([]byte, error) {
	fullPath, err := a.resolve(path)
	if err != nil {
		return nil, err
	}
	content, err := os.ReadFile(fullPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return content, nil
}

// Exists reports whether a regular file is stored at the relative path
func (a *DiskArchive) Exists(ctx context.Context, path string) bool {
	fullPath, err := a.resolve(path)
	if err != nil {
		return false
	}
	info, err := os.Stat(fullPath)
	return err == nil && info.Mode().IsRegular()
}

// GetFullPath converts a relative path to its location on disk
func (a *DiskArchive) GetFullPath(relativePath string) string {
	fullPath, err := a.resolve(relativePath)
	if err != nil {
		return filepath.Join(a.baseDir, cleanSegment(relativePath))
	}
	return fullPath
}

// resolve cleans every segment of path and keeps the result inside baseDir
func (a *DiskArchive) resolve(path string) (string, error) {
	var segments []string
	for _, seg := range strings.FieldsFunc(path, func(r rune) bool { return r == '/' || r == '\\' }) {
		seg = cleanSegment(seg)
		if seg == "" {
			continue
		}
		segments = append(segments, seg)
	}
	if len(segments) == 0 {
		return "", fmt.Errorf("empty archive path: %q", path)
	}

	absBase, err := filepath.Abs(a.baseDir)
	if err != nil {
		return "", fmt.Errorf("failed to resolve base path: %w", err)
	}
	full := filepath.Join(append([]string{absBase}, segments...)...)
	if !strings.HasPrefix(full, absBase+string(filepath.Separator)) {
		return "", fmt.Errorf("path escapes archive: %s", path)
	}
	return full, nil
}

// cleanSegment strips characters that are unsafe in a single path element
func cleanSegment(seg string) string {
	seg = unsafeSegment.ReplaceAllString(seg, "")
	if strings.Trim(seg, ".") == "" {
		return ""
	}
	return seg
}
