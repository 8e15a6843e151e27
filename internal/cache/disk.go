package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"verixiv/internal/util"
)

// DiskStore writes one JSON file per key under dir. When the directory grows
// past sizeLimit bytes the oldest files are removed first.
type DiskStore struct {
	dir       string
	sizeLimit int64

	mu sync.Mutex
}

type diskEntry struct {
	Key   string          `json:"key"`
	Value json.RawMessage `json:"value"`
}

func NewDiskStore(dir string, sizeLimit int64) (*DiskStore, error) {
	if err := util.EnsureDir(dir); err != nil {
		return nil, err
	}
	return &DiskStore{dir: dir, sizeLimit: sizeLimit}, nil
}

func (d *DiskStore) path(key string) string {
	return filepath.Join(d.dir, util.SHA256Hex([]byte(key))+".json")
}

func (d *DiskStore) Contains(_ context.Context, key string) (bool, error) {
	_, err := os.Stat(d.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("stat cache entry: %w", err)
	}
	return true, nil
}

func (d *DiskStore) Get(_ context.Context, key string) ([]byte, error) {
	raw, err := os.ReadFile(d.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read cache entry: %w", err)
	}
	var entry diskEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, fmt.Errorf("decode cache entry: %w", err)
	}
	if entry.Key != key {
		return nil, ErrNotFound
	}
	return entry.Value, nil
}

func (d *DiskStore) Set(_ context.Context, key string, value []byte) error {
	if !json.Valid(value) {
		return fmt.Errorf("cache value for %q is not valid json", key)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := util.WriteJSONAtomic(d.path(key), diskEntry{Key: key, Value: value}); err != nil {
		return err
	}
	if d.sizeLimit > 0 {
		if err := d.evict(); err != nil {
			slog.Warn("cache eviction failed", "dir", d.dir, "err", err)
		}
	}
	return nil
}

func (d *DiskStore) evict() error {
	type file struct {
		path string
		size int64
		mod  int64
	}
	var (
		files []file
		total int64
	)
	entries, err := os.ReadDir(d.dir)
	if err != nil {
		return fmt.Errorf("list cache dir: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") || strings.HasPrefix(e.Name(), "tmp-") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		files = append(files, file{path: filepath.Join(d.dir, e.Name()), size: info.Size(), mod: info.ModTime().UnixNano()})
		total += info.Size()
	}
	if total <= d.sizeLimit {
		return nil
	}
	sort.Slice(files, func(i, j int) bool { return files[i].mod < files[j].mod })
	for _, f := range files {
		if total <= d.sizeLimit {
			break
		}
		if err := os.Remove(f.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("evict %s: %w", f.path, err)
		}
		total -= f.size
	}
	return nil
}
