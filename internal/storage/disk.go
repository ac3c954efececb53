// Package storage keeps uploaded PDFs and thumbnails on the local disk.
package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Disk is a flat directory of named blobs.
type Disk struct {
	dir string
}

func NewDisk(dir string) (*Disk, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir %s failed: %w", dir, err)
	}
	return &Disk{dir: dir}, nil
}

func (d *Disk) Dir() string {
	return d.dir
}

// Path returns the on-disk location of name.
func (d *Disk) Path(name string) string {
	return filepath.Join(d.dir, filepath.Base(name))
}

// Save writes data under name and returns its path.
func (d *Disk) Save(name string, data []byte) (string, error) {
	path := d.Path(name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write blob %s failed: %w", name, err)
	}
	return path, nil
}

func (d *Disk) Read(name string) ([]byte, error) {
	data, err := os.ReadFile(d.Path(name))
	if err != nil {
		return nil, fmt.Errorf("read blob %s failed: %w", name, err)
	}
	return data, nil
}

// Remove deletes name; a blob that is already gone is not an error.
func (d *Disk) Remove(name string) error {
	if name == "" {
		return nil
	}
	if err := os.Remove(d.Path(name)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove blob %s failed: %w", name, err)
	}
	return nil
}

// UniqueName builds "<prefix>-<unix millis>-<random>.<ext>".
func UniqueName(prefix, ext string, now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:9]
	return fmt.Sprintf("%s-%d-%s.%s", prefix, now.UnixMilli(), suffix, strings.TrimPrefix(ext, "."))
}
