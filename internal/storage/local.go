// Package storage provides the local-disk snapshot file sink. Files are
// gzip-compressed; compression is a file-level concern, not part of the
// snapshot codec.
package storage

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/kurobane/hondana/internal/backup"
)

const filePrefix = "hondana_"

type Local struct {
	Dir string
}

func NewLocal(dir string) (*Local, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create backup directory: %w", err)
	}
	return &Local{Dir: dir}, nil
}

// Write stores data gzip-compressed under name. The file appears under its
// final name only once fully written.
func (l *Local) Write(name string, data []byte) error {
	tmp, err := os.CreateTemp(l.Dir, ".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	gz := gzip.NewWriter(tmp)
	if _, err := gz.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := gz.Close(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), filepath.Join(l.Dir, filepath.Base(name)))
}

// Read returns the decompressed contents of name. Files from builds that
// predate compression are returned as-is.
func (l *Local) Read(name string) ([]byte, error) {
	raw, err := os.ReadFile(filepath.Join(l.Dir, filepath.Base(name)))
	if err != nil {
		return nil, err
	}
	gz, err := gzip.NewReader(bytes.NewReader(raw))
	if err != nil {
		return raw, nil
	}
	defer gz.Close()
	return io.ReadAll(gz)
}

// List returns the snapshot files in the directory, unordered.
func (l *Local) List() ([]backup.FileInfo, error) {
	entries, err := os.ReadDir(l.Dir)
	if err != nil {
		return nil, err
	}

	var files []backup.FileInfo
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), filePrefix) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			return nil, err
		}
		files = append(files, backup.FileInfo{Name: e.Name(), ModTime: info.ModTime()})
	}
	return files, nil
}

func (l *Local) Remove(name string) error {
	return os.Remove(filepath.Join(l.Dir, filepath.Base(name)))
}

// Validate reports whether name exists and holds readable, non-empty data.
func (l *Local) Validate(name string) bool {
	data, err := l.Read(name)
	return err == nil && len(data) > 0
}
