package state

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"github.com/ajitpratap0/logevents/pkg/errors"
	jsonpool "github.com/ajitpratap0/logevents/pkg/json"
	"github.com/ajitpratap0/logevents/pkg/models"
)

// FileStore keeps the states of all connectors in one JSON document. Saves
// write a temporary file and rename it over the old one, so a crash never
// leaves a half-written document behind.
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore creates a store backed by path. The file is created on the
// first Save.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Load implements Store
func (s *FileStore) Load(_ context.Context, connector string) (models.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	states, err := s.read()
	if err != nil {
		return nil, err
	}
	return states[connector].Clone(), nil
}

// Save implements Store
func (s *FileStore) Save(_ context.Context, connector string, state models.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	states, err := s.read()
	if err != nil {
		return err
	}
	states[connector] = state
	return s.write(states)
}

// Close implements Store
func (s *FileStore) Close() error { return nil }

func (s *FileStore) read() (map[string]models.State, error) {
	states := make(map[string]models.State)

	f, err := os.Open(s.path)
	if os.IsNotExist(err) {
		return states, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeStorage, "failed to open state file")
	}
	defer f.Close()

	if err := jsonpool.Decode(f, &states); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeStorage, "failed to decode state file").
			WithDetail("path", s.path)
	}
	return states, nil
}

func (s *FileStore) write(states map[string]models.State) error {
	data, err := jsonpool.MarshalIndent(states, "", "  ")
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeStorage, "failed to encode state")
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrap(err, errors.ErrorTypeStorage, "failed to create state directory")
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeStorage, "failed to create temporary state file")
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errors.Wrap(err, errors.ErrorTypeStorage, "failed to write state file")
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errors.Wrap(err, errors.ErrorTypeStorage, "failed to sync state file")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return errors.Wrap(err, errors.ErrorTypeStorage, "failed to close state file")
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return errors.Wrap(err, errors.ErrorTypeStorage, "failed to replace state file")
	}
	return nil
}
