package qr

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

var pngMagic = []byte("\x89PNG\r\n\x1a\n")

func TestGeneratePNG(t *testing.T) {
	t.Parallel()
	png, err := Generate("otpauth://totp/github%3Abob?secret=GEZDGNBVGY3TQOJQ;digits=6", 128)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !bytes.HasPrefix(png, pngMagic) {
		t.Errorf("output does not start with PNG magic: % x", png[:8])
	}
}

func TestGenerateDefaultSize(t *testing.T) {
	t.Parallel()
	png, err := Generate("otpauth://totp/github?secret=GEZDGNBVGY3TQOJQ;digits=6", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !bytes.HasPrefix(png, pngMagic) {
		t.Error("output does not start with PNG magic")
	}
}

func TestWriteFilePermissions(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "code.png")

	if err := WriteFile("otpauth://totp/github?secret=GEZDGNBVGY3TQOJQ;digits=6", 64, path); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("file mode = %o, want 0600", perm)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.HasPrefix(data, pngMagic) {
		t.Error("file does not start with PNG magic")
	}
}
