package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestFileStoreWriteRead(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	ctx := context.Background()
	key, err := store.Write(ctx, "/exports/../exports/poster.jpg", []byte("jpeg"))
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if key != "exports/poster.jpg" {
		t.Fatalf("key = %q", key)
	}
	entries, err := os.ReadDir(filepath.Join(dir, "exports"))
	if err != nil || len(entries) != 1 || entries[0].Name() != "poster.jpg" {
		t.Fatalf("exports dir = %v, %v", entries, err)
	}
	data, err := store.Read(ctx, key)
	if err != nil || string(data) != "jpeg" {
		t.Fatalf("Read = %q, %v", data, err)
	}
	if _, err := store.Read(ctx, "missing.jpg"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Read missing err = %v", err)
	}
}

func TestFileStoreOverwrite(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	ctx := context.Background()
	for _, body := range []string{"first", "second"} {
		if _, err := store.Write(ctx, `posters\abc\poster.jpg`, []byte(body)); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}
	data, err := store.Read(ctx, "posters/abc/poster.jpg")
	if err != nil || string(data) != "second" {
		t.Fatalf("Read = %q, %v", data, err)
	}
}

func TestFileStoreHonoursCancellation(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := store.Write(ctx, "poster.jpg", []byte("x")); !errors.Is(err, context.Canceled) {
		t.Fatalf("Write err = %v", err)
	}
}

func TestSanitizeKeyRejectsTraversal(t *testing.T) {
	for _, key := range []string{"", "  ", "/", "../secret", "a/../../b", ".", `..\etc`} {
		if _, err := sanitizeKey(key); err == nil {
			t.Errorf("sanitizeKey(%q) accepted", key)
		}
	}
}
