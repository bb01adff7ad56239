package preset

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// Store is the persistence boundary for presets. Built-in presets are
// always present and read-only; Save and Delete reject their ids.
type Store interface {
	Get(ctx context.Context, id string) (*Preset, error)
	List(ctx context.Context) ([]*Preset, error)
	Save(ctx context.Context, p *Preset) error
	Delete(ctx context.Context, id string) error
}

// ErrNotFound is returned for unknown preset ids.
var ErrNotFound = fmt.Errorf("preset not found")

// ErrBuiltIn is returned for writes targeting a built-in preset.
var ErrBuiltIn = fmt.Errorf("built-in presets are read-only")

func isBuiltInID(id string) bool {
	for _, b := range BuiltIns() {
		if b.ID == id {
			return true
		}
	}
	return false
}

// MemoryStore keeps user presets in process memory, seeded with the
// built-ins. Used for tests and single-shot CLI runs.
type MemoryStore struct {
	mu      sync.RWMutex
	presets map[string]*Preset
}

// NewMemoryStore creates a store seeded with the built-in presets.
func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{presets: make(map[string]*Preset)}
	for _, b := range BuiltIns() {
		s.presets[b.ID] = b
	}
	return s
}

func (s *MemoryStore) Get(_ context.Context, id string) (*Preset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.presets[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return p.Clone(), nil
}

func (s *MemoryStore) List(_ context.Context) ([]*Preset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Preset, 0, len(s.presets))
	for _, p := range s.presets {
		out = append(out, p.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) Save(_ context.Context, p *Preset) error {
	if isBuiltInID(p.ID) {
		return fmt.Errorf("%w: %s", ErrBuiltIn, p.ID)
	}
	if err := p.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stored := p.Clone()
	stored.BuiltIn = false
	now := time.Now().UTC()
	if existing, ok := s.presets[p.ID]; ok {
		stored.CreatedAt = existing.CreatedAt
		stored.Version = existing.Version + 1
	} else {
		stored.CreatedAt = now
		stored.Version = 1
	}
	stored.UpdatedAt = now
	s.presets[p.ID] = stored

	// Reflect the assigned bookkeeping back to the caller.
	p.CreatedAt = stored.CreatedAt
	p.UpdatedAt = stored.UpdatedAt
	p.Version = stored.Version
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	if isBuiltInID(id) {
		return fmt.Errorf("%w: %s", ErrBuiltIn, id)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.presets[id]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	delete(s.presets, id)
	return nil
}

// FileStore persists user presets as one JSON document per id under a
// directory. Built-ins are served from memory and never written to disk.
type FileStore struct {
	dir string
	mu  sync.Mutex
}

// NewFileStore creates the directory if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create preset directory: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) path(id string) string {
	return filepath.Join(s.dir, id+".json")
}

func (s *FileStore) Get(_ context.Context, id string) (*Preset, error) {
	for _, b := range BuiltIns() {
		if b.ID == id {
			return b.Clone(), nil
		}
	}

	data, err := os.ReadFile(s.path(id))
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read preset %s: %w", id, err)
	}
	return Import(data)
}

func (s *FileStore) List(ctx context.Context) ([]*Preset, error) {
	out := BuiltIns()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list preset directory: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		id := strings.TrimSuffix(entry.Name(), ".json")
		if isBuiltInID(id) {
			continue
		}
		p, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *FileStore) Save(ctx context.Context, p *Preset) error {
	if isBuiltInID(p.ID) {
		return fmt.Errorf("%w: %s", ErrBuiltIn, p.ID)
	}
	if err := p.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	if existing, err := s.Get(ctx, p.ID); err == nil {
		p.CreatedAt = existing.CreatedAt
		p.Version = existing.Version + 1
	} else {
		p.CreatedAt = now
		p.Version = 1
	}
	p.UpdatedAt = now
	p.BuiltIn = false

	data, err := Export(p)
	if err != nil {
		return err
	}

	// Write-then-rename keeps a crash from corrupting the stored preset.
	tmp := s.path(p.ID) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write preset %s: %w", p.ID, err)
	}
	if err := os.Rename(tmp, s.path(p.ID)); err != nil {
		return fmt.Errorf("failed to store preset %s: %w", p.ID, err)
	}
	return nil
}

func (s *FileStore) Delete(_ context.Context, id string) error {
	if isBuiltInID(id) {
		return fmt.Errorf("%w: %s", ErrBuiltIn, id)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	err := os.Remove(s.path(id))
	if os.IsNotExist(err) {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return fmt.Errorf("failed to delete preset %s: %w", id, err)
	}
	return nil
}

var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*FileStore)(nil)
)
