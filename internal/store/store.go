// Package store manages the on-disk image directory: atomic PNG writes,
// reads for serving, and a TTL sweep so a tmpfs-backed IMAGE_DIR does not
// fill up with stale covers.
package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/rs/xid"

	u "covergen/internal/utils"
)

var (
	// ErrInvalidName signals a file name that is not safe to place in the
	// image directory.
	ErrInvalidName = errors.New("invalid image file name")
	// ErrNotFound signals that no stored image exists under that name.
	ErrNotFound = errors.New("image not found")
)

var validName = regexp.MustCompile(`^[a-zA-Z0-9_.-]+$`)

// Store is a flat directory of generated images with an optional TTL.
type Store struct {
	dir string
	ttl time.Duration
}

// New creates the image directory if needed. A ttl <= 0 disables sweeping.
func New(dir string, ttl time.Duration) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("image dir is empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create image dir %s: %w", dir, err)
	}
	return &Store{dir: dir, ttl: ttl}, nil
}

// Dir returns the directory backing this store.
func (s *Store) Dir() string {
	return s.dir
}

// CheckName validates that a name cannot escape the image directory.
func CheckName(name string) error {
	if name == "" || !validName.MatchString(name) {
		return ErrInvalidName
	}
	return nil
}

// Save writes data under name atomically (temp file + rename) so a reader
// never observes a half-written cover.
func (s *Store) Save(name string, data []byte) error {
	if err := CheckName(name); err != nil {
		return err
	}

	tmp := filepath.Join(s.dir, "."+name+"."+xid.New().String())
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, filepath.Join(s.dir, name)); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rename %s: %w", name, err)
	}
	return nil
}

// Read returns the stored bytes for name.
func (s *Store) Read(name string) ([]byte, error) {
	if err := CheckName(name); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

// Sweep removes images whose modification time is older than the TTL and
// returns how many were removed. A disabled TTL is a no-op.
func (s *Store) Sweep() (int, error) {
	if s.ttl <= 0 {
		return 0, nil
	}

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, err
	}

	cutoff := time.Now().Add(-s.ttl)
	removed := 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, e.Name())); err == nil {
			removed++
		}
	}
	return removed, nil
}

// RunJanitor sweeps the directory at the given interval until stop closes.
func (s *Store) RunJanitor(interval time.Duration, stop <-chan struct{}) {
	if s.ttl <= 0 || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if n, err := s.Sweep(); err != nil {
				u.Warn("Image sweep failed", "dir", s.dir, "error", err)
			} else if n > 0 {
				u.Info("Swept expired images", "dir", s.dir, "removed", n)
			}
		case <-stop:
			return
		}
	}
}
