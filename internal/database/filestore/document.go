package filestore

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// document tracks one JSON file that other processes may replace at any time.
// It is not safe for concurrent use; the owning store serializes access.
type document struct {
	path     string
	lockPath string
	info     os.FileInfo // file as last read or written, nil when absent
}

func newDocument(path string) *document {
	return &document{path: path, lockPath: path + ".lock"}
}

// lock takes the exclusive cross-process lock of the document.
func (d *document) lock() (func(), error) {
	f, err := os.OpenFile(d.lockPath, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("failed to open lock file: %w", err)
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("failed to lock %s: %w", filepath.Base(d.path), err)
	}
	return func() {
		_ = unix.Flock(int(f.Fd()), unix.LOCK_UN)
		_ = f.Close()
	}, nil
}

// stale reports whether the file on disk differs from the version last seen.
func (d *document) stale() (bool, error) {
	fi, err := os.Stat(d.path)
	if errors.Is(err, os.ErrNotExist) {
		return d.info != nil, nil
	}
	if err != nil {
		return false, err
	}
	if d.info == nil {
		return true, nil
	}
	return !os.SameFile(d.info, fi) ||
		!fi.ModTime().Equal(d.info.ModTime()) ||
		fi.Size() != d.info.Size(), nil
}

// read returns the contents and the file info of the document. A missing file
// yields nil data and nil info. The caller records info once the data decodes.
func (d *document) read() ([]byte, os.FileInfo, error) {
	f, err := os.Open(d.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return nil, nil, err
	}
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, nil, err
	}
	return data, fi, nil
}

// write persists v and remembers the new file so the write is not re-read.
func (d *document) write(v any) error {
	if err := writeJSON(d.path, v); err != nil {
		return err
	}
	fi, err := os.Stat(d.path)
	if err != nil {
		d.info = nil
		return nil
	}
	d.info = fi
	return nil
}

// decode parses data, naming the file in errors.
func (d *document) decode(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to parse %s: %w", filepath.Base(d.path), err)
	}
	return nil
}
