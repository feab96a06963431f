package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestWriteReturnsAbsolutePath(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	path, err := store.Write(context.Background(), "images/a.png", []byte("data"))
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if !filepath.IsAbs(path) {
		t.Fatalf("path = %q, want absolute", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if string(data) != "data" {
		t.Fatalf("content = %q", data)
	}
}

func TestWriteRejectsTraversal(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	for _, key := range []string{"../escape.png", "a/../../escape.png", "", "."} {
		if _, err := store.Write(context.Background(), key, []byte("data")); err == nil {
			t.Errorf("Write(%q) succeeded, want error", key)
		}
	}
}

func TestWriteNormalizesLeadingSlash(t *testing.T) {
	root := t.TempDir()
	store, err := NewFileStore(root)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	path, err := store.Write(context.Background(), "/images/a.png", []byte("data"))
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	want := filepath.Join(store.BasePath(), "images", "a.png")
	if path != want {
		t.Fatalf("path = %q, want %q", path, want)
	}
}

func TestWriteHonorsCancelledContext(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := store.Write(ctx, "images/a.png", []byte("data")); err == nil {
		t.Fatal("Write under cancelled context succeeded")
	}
}
