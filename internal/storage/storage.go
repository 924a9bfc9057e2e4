// Package storage resolves document storage locations partitioned by workflow
// lifecycle and writes uploaded content to the local storage root.
package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/asuwest1/ContractReviewOA/internal/errors"
)

// Store writes documents under a local root and composes the UNC paths that
// are persisted as the documents' file references.
type Store struct {
	root    string
	uncBase string
}

// New creates a Store rooted at root.
func New(root, uncBase string) (*Store, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create storage root: %w", err)
	}
	return &Store{root: root, uncBase: uncBase}, nil
}

// SanitizeFilename reduces a caller-supplied filename to a safe basename.
// Anything empty, dot-only, or containing a path separator, traversal segment
// or NUL byte is rejected. Caller input must never pick a storage location.
func SanitizeFilename(raw string) (string, error) {
	if raw == "" {
		return "", errors.InvalidInput("filename", "filename is required")
	}
	if strings.ContainsAny(raw, "\x00") {
		return "", errors.InvalidInput("filename", "filename contains invalid characters")
	}
	if strings.ContainsRune(raw, '/') || strings.ContainsRune(raw, '\\') {
		return "", errors.InvalidInput("filename", "filename must not contain path separators")
	}
	name := filepath.Base(raw)
	if name != raw || name == "" || name == "." || name == ".." {
		return "", errors.InvalidInput("filename", "invalid filename")
	}
	return name, nil
}

// StatusFolder maps a workflow status onto its lifecycle partition.
func StatusFolder(status string) string {
	switch status {
	case "Archived":
		return "Approved"
	case "Rejected":
		return "Rejected"
	case "Cancelled":
		return "Cancelled"
	default:
		return "InProcess"
	}
}

// Save writes content (when non-empty) into the partition for status and
// returns the UNC path recorded against the document. The filename must
// already be sanitized.
func (s *Store) Save(filename, content, status string) (string, error) {
	folder := StatusFolder(status)
	dir := filepath.Join(s.root, folder)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", errors.Wrap(err, errors.ErrCodeInternal, "create storage folder")
	}
	if content != "" {
		if err := os.WriteFile(filepath.Join(dir, filename), []byte(content), 0o644); err != nil {
			return "", errors.Wrap(err, errors.ErrCodeInternal, "write document content")
		}
	}
	return fmt.Sprintf(`%s\%s\%s`, s.uncBase, folder, filename), nil
}
