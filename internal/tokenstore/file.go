package tokenstore

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/sahilvermadev/mapx/internal/errors"
)

// File keeps the pair in a JSON document. Writes go to a temp file in the
// same directory and are renamed into place.
type File struct {
	mu   sync.Mutex
	path string
}

var _ Store = (*File)(nil)

// NewFile returns a File store at path. The file is created on first Save.
func NewFile(path string) *File {
	return &File{path: path}
}

// Path returns the document location.
func (f *File) Path() string { return f.path }

// Save implements Store.
func (f *File) Save(_ context.Context, p Pair) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(f.path), 0700); err != nil {
		return errors.NewStoreWriteError("file", err)
	}

	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return errors.NewStoreWriteError("file", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(f.path), ".session-*.json")
	if err != nil {
		return errors.NewStoreWriteError("file", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		return errors.NewStoreWriteError("file", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errors.NewStoreWriteError("file", err)
	}
	if err := tmp.Close(); err != nil {
		return errors.NewStoreWriteError("file", err)
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		return errors.NewStoreWriteError("file", err)
	}
	return nil
}

// Load implements Store. A missing file is an empty pair.
func (f *File) Load(_ context.Context) (Pair, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := os.ReadFile(f.path)
	if stderrors.Is(err, fs.ErrNotExist) {
		return Pair{}, nil
	}
	if err != nil {
		return Pair{}, errors.NewStoreReadError("file", err)
	}

	var p Pair
	if err := json.Unmarshal(data, &p); err != nil {
		return Pair{}, errors.NewStoreReadError("file", err)
	}
	return p, nil
}

// Clear implements Store. The whole document goes, legacy keys included.
func (f *File) Clear(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.Remove(f.path); err != nil && !stderrors.Is(err, fs.ErrNotExist) {
		return errors.NewStoreWriteError("file", err)
	}
	return nil
}

// Close implements Store.
func (f *File) Close() error { return nil }
