package uploads

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestKeys(t *testing.T) {
	now := time.Date(2024, 1, 10, 9, 30, 5, 0, time.UTC)
	if got := ImportKey(now); got != "imports/2024-01-10/claims_import_20240110093005.csv" {
		t.Errorf("ImportKey() = %q", got)
	}
	if got := ExportKey(now); got != "exports/2024-01-10/claims_export_20240110093005.csv" {
		t.Errorf("ExportKey() = %q", got)
	}
}

func TestValidKey(t *testing.T) {
	tests := []struct {
		key  string
		want bool
	}{
		{"imports/2024-01-10/a.csv", true},
		{"a.csv", true},
		{"", false},
		{"/etc/passwd", false},
		{"../escape.csv", false},
		{"imports/../../escape.csv", false},
	}
	for _, tt := range tests {
		if got := validKey(tt.key); got != tt.want {
			t.Errorf("validKey(%q) = %v, want %v", tt.key, got, tt.want)
		}
	}
}

func TestDiskStore_PutGet(t *testing.T) {
	root := t.TempDir()
	store, err := NewDiskStore(root, 0)
	if err != nil {
		t.Fatalf("NewDiskStore() error: %v", err)
	}

	content := "patient_first_name,patient_last_name\nJane,Doe\n"
	obj, err := store.Put(context.Background(), "imports/2024-01-10/claims_import_20240110093005.csv", strings.NewReader(content))
	if err != nil {
		t.Fatalf("Put() error: %v", err)
	}

	sum := sha256.Sum256([]byte(content))
	if obj.Hash != hex.EncodeToString(sum[:]) {
		t.Errorf("unexpected hash %s", obj.Hash)
	}
	if obj.Size != int64(len(content)) {
		t.Errorf("expected size %d, got %d", len(content), obj.Size)
	}

	onDisk, err := os.ReadFile(filepath.Join(root, "imports", "2024-01-10", "claims_import_20240110093005.csv"))
	if err != nil {
		t.Fatalf("expected file on disk: %v", err)
	}
	if string(onDisk) != content {
		t.Errorf("unexpected file content %q", onDisk)
	}

	rc, meta, err := store.Get(context.Background(), obj.Key)
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	defer rc.Close()
	data, _ := io.ReadAll(rc)
	if string(data) != content || meta.Size != obj.Size {
		t.Errorf("round trip mismatch: %q size=%d", data, meta.Size)
	}
}

func TestDiskStore_CollisionAddsSuffix(t *testing.T) {
	store, _ := NewDiskStore(t.TempDir(), 0)
	ctx := context.Background()
	key := "exports/2024-01-10/claims_export_20240110093005.csv"

	first, err := store.Put(ctx, key, strings.NewReader("a"))
	if err != nil {
		t.Fatalf("first Put() error: %v", err)
	}
	second, err := store.Put(ctx, key, strings.NewReader("b"))
	if err != nil {
		t.Fatalf("second Put() error: %v", err)
	}

	if first.Key != key {
		t.Errorf("expected first key %s, got %s", key, first.Key)
	}
	if second.Key != "exports/2024-01-10/claims_export_20240110093005-2.csv" {
		t.Errorf("unexpected second key %s", second.Key)
	}
}

func TestDiskStore_FileTooLarge(t *testing.T) {
	root := t.TempDir()
	store, _ := NewDiskStore(root, 4)

	_, err := store.Put(context.Background(), "imports/big.csv", strings.NewReader("0123456789"))
	if !errors.Is(err, ErrFileTooLarge) {
		t.Fatalf("expected ErrFileTooLarge, got %v", err)
	}
	if _, statErr := os.Stat(filepath.Join(root, "imports", "big.csv")); !os.IsNotExist(statErr) {
		t.Error("expected partial file to be removed")
	}
}

func TestDiskStore_InvalidKey(t *testing.T) {
	store, _ := NewDiskStore(t.TempDir(), 0)
	if _, err := store.Put(context.Background(), "../x.csv", strings.NewReader("a")); !errors.Is(err, ErrInvalidKey) {
		t.Errorf("expected ErrInvalidKey, got %v", err)
	}
	if _, _, err := store.Get(context.Background(), "/abs.csv"); !errors.Is(err, ErrInvalidKey) {
		t.Errorf("expected ErrInvalidKey, got %v", err)
	}
}

func TestDiskStore_GetNotFound(t *testing.T) {
	store, _ := NewDiskStore(t.TempDir(), 0)
	if _, _, err := store.Get(context.Background(), "imports/missing.csv"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestDiskStore_CancelledContext(t *testing.T) {
	store, _ := NewDiskStore(t.TempDir(), 0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := store.Put(ctx, "imports/a.csv", strings.NewReader("a")); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestMemoryStore(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	obj, err := store.Put(ctx, "imports/a.csv", strings.NewReader("hello"))
	if err != nil {
		t.Fatalf("Put() error: %v", err)
	}
	dup, _ := store.Put(ctx, "imports/a.csv", strings.NewReader("again"))
	if dup.Key != "imports/a-2.csv" {
		t.Errorf("unexpected duplicate key %s", dup.Key)
	}

	rc, meta, err := store.Get(ctx, obj.Key)
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	data, _ := io.ReadAll(rc)
	if string(data) != "hello" || meta.Size != 5 {
		t.Errorf("unexpected content %q size %d", data, meta.Size)
	}
	if len(store.Keys()) != 2 {
		t.Errorf("expected 2 keys, got %d", len(store.Keys()))
	}
	if _, _, err := store.Get(ctx, "nope.csv"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if _, err := store.Put(ctx, "x.csv", nil); !errors.Is(err, ErrMissingContent) {
		t.Errorf("expected ErrMissingContent, got %v", err)
	}
}

func TestMemoryStore_ConcurrentPut(t *testing.T) {
	store := NewMemoryStore()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := store.Put(context.Background(), "imports/same.csv", strings.NewReader("x")); err != nil {
				t.Errorf("Put() error: %v", err)
			}
		}()
	}
	wg.Wait()
	if n := len(store.Keys()); n != 20 {
		t.Errorf("expected 20 distinct keys, got %d", n)
	}
}
