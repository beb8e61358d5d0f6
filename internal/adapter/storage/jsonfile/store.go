package jsonfile

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/bnema/hlsd/internal/domain"
	"github.com/bnema/hlsd/internal/port"
)

const fileName = "media_items.json"

// Store keeps media items in a single JSON file, rewritten atomically on
// every change.
type Store struct {
	mu    sync.RWMutex
	path  string
	media map[string]*domain.MediaItem
}

func NewStore(dataDir string) (*Store, error) {
	path := filepath.Join(dataDir, fileName)

	store := &Store{
		path:  path,
		media: make(map[string]*domain.MediaItem),
	}

	if err := store.load(); err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
	}

	return store, nil
}

func (s *Store) load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		return err
	}

	if len(data) == 0 {
		return nil
	}

	var items []*domain.MediaItem
	if err := json.Unmarshal(data, &items); err != nil {
		return err
	}

	for _, m := range items {
		s.media[m.ID] = m
	}

	return nil
}

func (s *Store) save() error {
	tmpPath := s.path + ".tmp"

	data, err := json.MarshalIndent(s.sorted(), "", "  ")
	if err != nil {
		return err
	}

	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return err
	}

	return os.Rename(tmpPath, s.path)
}

func (s *Store) sorted() []*domain.MediaItem {
	items := make([]*domain.MediaItem, 0, len(s.media))
	for _, m := range s.media {
		items = append(items, m)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items
}

func (s *Store) Save(_ context.Context, m *domain.MediaItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *m
	s.media[m.ID] = &cp
	return s.save()
}

func (s *Store) Get(_ context.Context, id string) (*domain.MediaItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.media[id]
	if !ok {
		return nil, domain.ErrNotFound
	}

	cp := *m
	return &cp, nil
}

func (s *Store) ListAll(_ context.Context) ([]*domain.MediaItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := s.sorted()
	out := make([]*domain.MediaItem, len(items))
	for i, m := range items {
		cp := *m
		out[i] = &cp
	}
	return out, nil
}

func (s *Store) UpdateHLS(_ context.Context, id string, u domain.HLSUpdate) error {
	if u.IsEmpty() {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.media[id]
	if !ok {
		return domain.ErrNotFound
	}
	m.Apply(u)
	return s.save()
}

func (s *Store) Ping(_ context.Context) error {
	return nil
}

func (s *Store) Close() error {
	return nil
}

var _ port.MediaStore = (*Store)(nil)
