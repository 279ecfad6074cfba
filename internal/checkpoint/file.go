package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/amishk599/leadradar/internal/fsutil"
	"github.com/amishk599/leadradar/internal/model"
)

// ErrCorrupt is returned when a persisted checkpoint cannot be decoded. Runs
// abort on it rather than overwrite prior work.
var ErrCorrupt = errors.New("corrupt checkpoint")

// FileBackend stores the checkpoint as a JSON object keyed by identity key.
type FileBackend struct {
	path string
}

// NewFileBackend returns a backend persisting to path.
func NewFileBackend(path string) *FileBackend {
	return &FileBackend{path: path}
}

// Path returns the checkpoint file path.
func (b *FileBackend) Path() string { return b.path }

// Load reads the checkpoint file. A missing file is an empty checkpoint.
func (b *FileBackend) Load(_ context.Context) (map[string]model.Result, error) {
	data, err := os.ReadFile(b.path)
	if errors.Is(err, fs.ErrNotExist) {
		return make(map[string]model.Result), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read checkpoint %s: %w", b.path, err)
	}

	entries := make(map[string]model.Result)
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, b.path, err)
	}
	for key, r := range entries {
		if r.Key == "" {
			r.Key = key
			entries[key] = r
		}
		if r.Key != key {
			return nil, fmt.Errorf("%w: %s: entry %q is stored under %q", ErrCorrupt, b.path, r.Key, key)
		}
	}
	return entries, nil
}

// Save overwrites the checkpoint file with entries.
func (b *FileBackend) Save(_ context.Context, entries map[string]model.Result) error {
	return fsutil.WriteJSON(b.path, entries)
}
