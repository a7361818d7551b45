package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/Calibrant-Labs/theatre/core/pkg/contracts"
	"github.com/Calibrant-Labs/theatre/core/pkg/lifecycle"
)

// FileStore implements Store using a local JSON file (for simple durability).
type FileStore struct {
	path  string
	mu    sync.RWMutex
	data  map[string]contracts.Theatre
	clock func() time.Time
}

func NewFileStore(path string) (*FileStore, error) {
	return NewFileStoreWithClock(path, time.Now)
}

func NewFileStoreWithClock(path string, clock func() time.Time) (*FileStore, error) {
	fs := &FileStore{
		path:  path,
		data:  make(map[string]contracts.Theatre),
		clock: clock,
	}
	if err := fs.load(); err != nil {
		return nil, err
	}
	return fs, nil
}

func (f *FileStore) load() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, err := os.Stat(f.path); os.IsNotExist(err) {
		return nil // start empty
	}

	raw, err := os.ReadFile(f.path)
	if err != nil {
		return err
	}

	return json.Unmarshal(raw, &f.data)
}

func (f *FileStore) save() error {
	raw, err := json.MarshalIndent(f.data, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(f.path, raw, 0600)
}

func (f *FileStore) Create(_ context.Context, t contracts.Theatre) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if t.TheatreID == "" {
		return fmt.Errorf("store: theatre id required")
	}
	if _, exists := f.data[t.TheatreID]; exists {
		return ErrExists
	}

	if t.State == "" {
		t.State = lifecycle.StateDraft
	}
	if !lifecycle.IsKnown(t.State) {
		return fmt.Errorf("store: unknown state %q", t.State)
	}
	t.CreatedAt = f.clock()

	f.data[t.TheatreID] = t
	return f.save()
}

func (f *FileStore) Get(_ context.Context, id string) (contracts.Theatre, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	t, exists := f.data[id]
	if !exists {
		return contracts.Theatre{}, ErrNotFound
	}
	return t, nil
}

func (f *FileStore) UpdateState(_ context.Context, id string, target lifecycle.State) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	t, exists := f.data[id]
	if !exists {
		return ErrNotFound
	}

	if err := checkTransition(id, t.State, target); err != nil {
		return err
	}

	t.State = target
	if target == lifecycle.StateCommitted {
		t.CommittedAt = f.clock()
	}
	f.data[id] = t

	return f.save()
}

func (f *FileStore) Update(_ context.Context, t contracts.Theatre) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	stored, exists := f.data[t.TheatreID]
	if !exists {
		return ErrNotFound
	}
	if stored.State != t.State {
		return fmt.Errorf("store: state change through Update is not allowed (stored %s, given %s)", stored.State, t.State)
	}

	f.data[t.TheatreID] = t
	return f.save()
}

func (f *FileStore) ListByState(_ context.Context, state lifecycle.State) ([]contracts.Theatre, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	var out []contracts.Theatre
	for _, t := range f.data {
		if t.State == state {
			out = append(out, t)
		}
	}
	sortTheatres(out)
	return out, nil
}

func (f *FileStore) ListAll(_ context.Context) ([]contracts.Theatre, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	out := make([]contracts.Theatre, 0, len(f.data))
	for _, t := range f.data {
		out = append(out, t)
	}
	sortTheatres(out)
	return out, nil
}

func sortTheatres(ts []contracts.Theatre) {
	sort.Slice(ts, func(i, j int) bool { return ts[i].TheatreID < ts[j].TheatreID })
}
