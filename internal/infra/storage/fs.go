// Package storage persists raw document attachments.
package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/Gumbees/homebase-intake/internal/domain/ports/adapter"
	"github.com/Gumbees/homebase-intake/internal/infra/security"
)

// FSStore writes attachments under a base directory, one file per
// attachment, named by a generated id. The returned ref is the id plus
// extension, never an absolute path, so the base directory can move.
// With an encryption service set, blobs are sealed before they touch disk.
type FSStore struct {
	base string
	enc  *security.EncryptionService
}

var _ adapter.AttachmentStore = (*FSStore)(nil)

func NewFSStore(base string) (*FSStore, error) {
	if err := os.MkdirAll(base, 0o755); err != nil {
		return nil, fmt.Errorf("attachment dir: %w", err)
	}
	return &FSStore{base: base}, nil
}

// NewEncryptedFSStore stores attachments encrypted at rest.
func NewEncryptedFSStore(base string, enc *security.EncryptionService) (*FSStore, error) {
	s, err := NewFSStore(base)
	if err != nil {
		return nil, err
	}
	s.enc = enc
	return s, nil
}

func (s *FSStore) SaveAttachment(_ context.Context, data []byte, mime string) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("empty attachment")
	}
	ref := uuid.NewString() + extensionFor(mime)
	if s.enc != nil {
		sealed, err := s.enc.Seal(data)
		if err != nil {
			return "", fmt.Errorf("seal attachment: %w", err)
		}
		data = sealed
		ref += ".enc"
	}
	path := filepath.Join(s.base, ref)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write attachment: %w", err)
	}
	return ref, nil
}

// Open returns the stored bytes for a ref. Refs are validated against path
// traversal before touching the filesystem.
func (s *FSStore) Open(ref string) ([]byte, error) {
	if ref == "" || strings.ContainsAny(ref, `/\`) || strings.Contains(ref, "..") {
		return nil, fmt.Errorf("invalid attachment ref %q", ref)
	}
	data, err := os.ReadFile(filepath.Join(s.base, ref))
	if err != nil {
		return nil, err
	}
	if s.enc != nil && strings.HasSuffix(ref, ".enc") {
		return s.enc.Open(data)
	}
	return data, nil
}

func extensionFor(mime string) string {
	switch strings.ToLower(mime) {
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	case "image/heic":
		return ".heic"
	case "application/pdf":
		return ".pdf"
	default:
		return ".bin"
	}
}
