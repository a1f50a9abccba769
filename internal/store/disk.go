package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Disk persists artifact envelopes across restarts, one file per key. The
// filename is the sha256 of the full cache key, which keeps session
// handles and precomputed fingerprints out of the filesystem namespace.
//
// TTLs are ignored: disk is the warm-start tier and entries live until
// deleted.
type Disk struct {
	dir string
}

// NewDisk creates (if needed) and opens the cache directory.
func NewDisk(dir string) (*Disk, error) {
	if dir == "" {
		return nil, errors.New("store: disk dir is empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("store: create cache dir: %w", err)
	}
	return &Disk{dir: dir}, nil
}

func (d *Disk) path(key string) string {
	sum := sha256.Sum256([]byte(key))
	return filepath.Join(d.dir, hex.EncodeToString(sum[:]))
}

func (d *Disk) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	data, err := os.ReadFile(d.path(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("store: disk read: %w", err)
	}
	return data, true, nil
}

func (d *Disk) Set(ctx context.Context, key string, value []byte, _ time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := atomicWrite(d.path(key), value, d.dir); err != nil {
		return fmt.Errorf("store: disk write: %w", err)
	}
	return nil
}

func (d *Disk) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := os.Remove(d.path(key))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("store: disk delete: %w", err)
	}
	return nil
}

func (d *Disk) Close() error { return nil }

// atomicWrite writes data to path via a temporary file and rename, so
// readers never observe a half-written envelope.
func atomicWrite(path string, data []byte, tmpDir string) error {
	tmp, err := os.CreateTemp(tmpDir, ".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}

	if err := tmp.Close(); err != nil {
		return err
	}

	if err := os.Rename(tmpName, path); err != nil {
		return err
	}

	success = true
	return nil
}
