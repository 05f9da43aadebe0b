package storage

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Gumbees/homebase-intake/internal/infra/security"
)

func TestSaveAndOpenRoundTrip(t *testing.T) {
	t.Parallel()
	store, err := NewFSStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	data := []byte("fake image bytes")
	ref, err := store.SaveAttachment(context.Background(), data, "image/png")
	if err != nil {
		t.Fatalf("SaveAttachment: %v", err)
	}
	if !strings.HasSuffix(ref, ".png") {
		t.Errorf("ref = %q, want .png suffix", ref)
	}
	if strings.ContainsAny(ref, `/\`) {
		t.Errorf("ref must not contain path separators: %q", ref)
	}

	got, err := store.Open(ref)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Errorf("round trip mismatch")
	}
}

func TestEncryptedStore_SealsOnDisk(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	enc, err := security.NewEncryptionService("0123456789abcdef0123456789abcdef")
	if err != nil {
		t.Fatal(err)
	}
	store, err := NewEncryptedFSStore(dir, enc)
	if err != nil {
		t.Fatal(err)
	}

	data := []byte("receipt pixels")
	ref, err := store.SaveAttachment(context.Background(), data, "image/jpeg")
	if err != nil {
		t.Fatalf("SaveAttachment: %v", err)
	}
	if !strings.HasSuffix(ref, ".jpg.enc") {
		t.Errorf("ref = %q, want .jpg.enc suffix", ref)
	}

	raw, err := os.ReadFile(filepath.Join(dir, ref))
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Contains(raw, data) {
		t.Error("plaintext found on disk")
	}

	got, err := store.Open(ref)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Error("decrypt round trip mismatch")
	}
}

func TestSaveAttachment_RejectsEmpty(t *testing.T) {
	t.Parallel()
	store, err := NewFSStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := store.SaveAttachment(context.Background(), nil, "image/png"); err == nil {
		t.Fatal("empty attachment should be rejected")
	}
}

func TestOpen_RejectsTraversal(t *testing.T) {
	t.Parallel()
	store, err := NewFSStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	for _, ref := range []string{"", "../etc/passwd", "a/b.png", `a\b.png`} {
		if _, err := store.Open(ref); err == nil {
			t.Errorf("ref %q should be rejected", ref)
		}
	}
}
