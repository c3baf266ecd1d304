// Package uploads archives uploaded import files and generated exports on
// disk under date-partitioned keys such as
// imports/2024-01-10/claims_import_20240110093000.csv.
package uploads

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

var (
	ErrNotFound       = errors.New("stored file not found")
	ErrFileTooLarge   = errors.New("file exceeds maximum allowed size")
	ErrInvalidKey     = errors.New("invalid storage key")
	ErrMissingContent = errors.New("file content is required")
)

const (
	ImportPrefix = "imports"
	ExportPrefix = "exports"
)

// Object describes a stored file.
type Object struct {
	Key       string    `json:"key"`
	Size      int64     `json:"size"`
	Hash      string    `json:"hash"`
	CreatedAt time.Time `json:"created_at"`
}

// Store is the contract the import and export paths depend on.
type Store interface {
	// Put stores content under key. When key is already taken a numeric
	// suffix is added; the returned Object carries the final key.
	Put(ctx context.Context, key string, content io.Reader) (*Object, error)
	Get(ctx context.Context, key string) (io.ReadCloser, *Object, error)
}

// ImportKey names an uploaded claims file received at now.
func ImportKey(now time.Time) string {
	return datedKey(ImportPrefix, "claims_import", now)
}

// ExportKey names a generated claims export produced at now.
func ExportKey(now time.Time) string {
	return datedKey(ExportPrefix, "claims_export", now)
}

func datedKey(prefix, base string, now time.Time) string {
	return path.Join(prefix, now.Format("2006-01-02"), fmt.Sprintf("%s_%s.csv", base, now.Format("20060102150405")))
}

func validKey(key string) bool {
	return key != "" && !strings.HasPrefix(key, "/") && fs.ValidPath(key)
}

// withSuffix turns "a/b.csv" into "a/b-2.csv".
func withSuffix(key string, n int) string {
	ext := path.Ext(key)
	return fmt.Sprintf("%s-%d%s", strings.TrimSuffix(key, ext), n, ext)
}

const maxKeyAttempts = 100

// ---------------------------------------------------------------------------
// Disk implementation
// ---------------------------------------------------------------------------

// DiskStore keeps files below a root directory.
type DiskStore struct {
	root    string
	maxSize int64
	now     func() time.Time
}

// NewDiskStore creates root if needed. maxSize <= 0 disables the size check.
func NewDiskStore(root string, maxSize int64) (*DiskStore, error) {
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("create storage dir %s: %w", root, err)
	}
	return &DiskStore{root: root, maxSize: maxSize, now: time.Now}, nil
}

func (s *DiskStore) Root() string { return s.root }

func (s *DiskStore) Put(ctx context.Context, key string, content io.Reader) (*Object, error) {
	if !validKey(key) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	if content == nil {
		return nil, ErrMissingContent
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	dir := filepath.Join(s.root, filepath.FromSlash(path.Dir(key)))
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create dir %s: %w", dir, err)
	}

	f, finalKey, err := s.create(key)
	if err != nil {
		return nil, err
	}

	obj, err := s.write(f, content)
	if closeErr := f.Close(); err == nil && closeErr != nil {
		err = fmt.Errorf("close %s: %w", finalKey, closeErr)
	}
	if err != nil {
		_ = os.Remove(f.Name())
		return nil, err
	}

	obj.Key = finalKey
	return obj, nil
}

// create opens key exclusively, trying numbered variants when it exists.
func (s *DiskStore) create(key string) (*os.File, string, error) {
	candidate := key
	for i := 2; i < maxKeyAttempts; i++ {
		name := filepath.Join(s.root, filepath.FromSlash(candidate))
		f, err := os.OpenFile(name, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o640)
		if err == nil {
			return f, candidate, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return nil, "", fmt.Errorf("create %s: %w", candidate, err)
		}
		candidate = withSuffix(key, i)
	}
	return nil, "", fmt.Errorf("no free name for %s", key)
}

func (s *DiskStore) write(w io.Writer, content io.Reader) (*Object, error) {
	h := sha256.New()
	src := content
	if s.maxSize > 0 {
		src = io.LimitReader(content, s.maxSize+1)
	}

	n, err := io.Copy(io.MultiWriter(w, h), src)
	if err != nil {
		return nil, fmt.Errorf("write content: %w", err)
	}
	if s.maxSize > 0 && n > s.maxSize {
		return nil, ErrFileTooLarge
	}

	return &Object{
		Size:      n,
		Hash:      hex.EncodeToString(h.Sum(nil)),
		CreatedAt: s.now().UTC(),
	}, nil
}

func (s *DiskStore) Get(ctx context.Context, key string) (io.ReadCloser, *Object, error) {
	if !validKey(key) {
		return nil, nil, fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	f, err := os.Open(filepath.Join(s.root, filepath.FromSlash(key)))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil, ErrNotFound
		}
		return nil, nil, fmt.Errorf("open %s: %w", key, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, fmt.Errorf("stat %s: %w", key, err)
	}
	return f, &Object{Key: key, Size: info.Size(), CreatedAt: info.ModTime().UTC()}, nil
}

// ---------------------------------------------------------------------------
// In-memory implementation
// ---------------------------------------------------------------------------

type storedFile struct {
	object  Object
	content []byte
}

// MemoryStore is a thread-safe in-memory Store for tests.
type MemoryStore struct {
	mu    sync.RWMutex
	files map[string]*storedFile
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{files: make(map[string]*storedFile)}
}

func (s *MemoryStore) Put(_ context.Context, key string, content io.Reader) (*Object, error) {
	if !validKey(key) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	if content == nil {
		return nil, ErrMissingContent
	}
	data, err := io.ReadAll(content)
	if err != nil {
		return nil, fmt.Errorf("read content: %w", err)
	}
	sum := sha256.Sum256(data)

	s.mu.Lock()
	defer s.mu.Unlock()

	final := key
	for i := 2; ; i++ {
		if _, taken := s.files[final]; !taken {
			break
		}
		final = withSuffix(key, i)
	}

	obj := Object{Key: final, Size: int64(len(data)), Hash: hex.EncodeToString(sum[:]), CreatedAt: time.Now().UTC()}
	s.files[final] = &storedFile{object: obj, content: data}
	out := obj
	return &out, nil
}

func (s *MemoryStore) Get(_ context.Context, key string) (io.ReadCloser, *Object, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.files[key]
	if !ok {
		return nil, nil, ErrNotFound
	}
	obj := f.object
	return io.NopCloser(bytes.NewReader(f.content)), &obj, nil
}

// Keys returns the stored keys in no particular order.
func (s *MemoryStore) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.files))
	for k := range s.files {
		keys = append(keys, k)
	}
	return keys
}
