package termstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/joelkehle/safe-negotiator/internal/safe"
)

type fileState struct {
	Versions []Version `json:"versions"`
}

// FileStore keeps the history in memory and rewrites a JSON state file
// after every update.
type FileStore struct {
	*MemoryStore
	path string
	mu   sync.Mutex
}

func NewFileStore(path string, cfg Config) (*FileStore, error) {
	fs := &FileStore{MemoryStore: NewMemoryStore(cfg), path: path}
	state, err := loadState(path)
	if err != nil {
		return nil, fmt.Errorf("load terms state: %w", err)
	}
	fs.restore(state.Versions)
	return fs, nil
}

func (f *FileStore) Update(ctx context.Context, terms safe.Terms, source Source, note string) (Version, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, err := f.MemoryStore.Update(ctx, terms, source, note)
	if err != nil {
		return Version{}, err
	}
	history, _ := f.MemoryStore.History(ctx)
	if err := saveState(f.path, fileState{Versions: history}); err != nil {
		f.restore(history[:len(history)-1])
		return Version{}, fmt.Errorf("persist terms state: %w", err)
	}
	return v, nil
}

func loadState(path string) (fileState, error) {
	blob, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fileState{}, nil
		}
		return fileState{}, err
	}
	var state fileState
	if err := json.Unmarshal(blob, &state); err != nil {
		return fileState{}, err
	}
	return state, nil
}

func saveState(path string, state fileState) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	blob, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, blob, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
