package quota

import (
	"context"
	"errors"
	"os"
	"sync"

	"github.com/MimeLyc/bioreel/pkg/file"
	"github.com/MimeLyc/bioreel/pkg/log"
)

// FileStore keeps State in one JSON document. Writes go through a temp file
// and rename. It is safe for one process only.
type FileStore struct {
	mu   sync.Mutex
	path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (f *FileStore) Path() string {
	return f.path
}

func (f *FileStore) Load(_ context.Context) (State, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.load()
}

func (f *FileStore) load() (State, error) {
	var s State
	if err := file.ReadJSON(f.path, &s); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return newState(""), nil
		}
		log.Warn("Quota state %s is unreadable, starting fresh: %v", f.path, err)
		return newState(""), nil
	}
	s.normalize()
	return s, nil
}

func (f *FileStore) Save(_ context.Context, s State) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s.normalize()
	return file.WriteJSON(f.path, s)
}

func (f *FileStore) Update(_ context.Context, fn func(*State) error) (State, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	s, err := f.load()
	if err != nil {
		return State{}, err
	}
	if err := fn(&s); err != nil {
		return State{}, err
	}
	s.normalize()
	if err := file.WriteJSON(f.path, s); err != nil {
		return s, err
	}
	return s, nil
}

func (f *FileStore) Close() error { return nil }
