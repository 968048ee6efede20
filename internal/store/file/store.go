// Package file implements domain.LedgerStore on top of a single JSON file.
//
// Every mutation follows load -> mutate -> overwrite: the whole snapshot is
// rewritten through a temp file and rename, so the durability guarantee is
// whole-file overwrite only. The store assumes a single writing process; no
// cross-process locking is performed.
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/alanyoungcy/polytrader/internal/domain"
)

// Store is a file-backed ledger store.
type Store struct {
	path string
	mu   sync.Mutex
}

// New creates a Store at path, creating an empty snapshot file on first use
// if none exists.
func New(path string) (*Store, error) {
	s := &Store{path: path}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := s.save(map[string]domain.Position{}); err != nil {
			return nil, fmt.Errorf("file: initialize %s: %w", path, err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("file: stat %s: %w", path, err)
	}
	return s, nil
}

// Get returns the position for tokenID, or domain.ErrNotFound.
func (s *Store) Get(ctx context.Context, tokenID string) (domain.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	positions, err := s.load()
	if err != nil {
		return domain.Position{}, err
	}
	pos, ok := positions[tokenID]
	if !ok {
		return domain.Position{}, domain.ErrNotFound
	}
	return pos, nil
}

// Put inserts or replaces the position keyed by its token ID.
func (s *Store) Put(ctx context.Context, pos domain.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	positions, err := s.load()
	if err != nil {
		return err
	}
	positions[pos.TokenID] = pos
	return s.save(positions)
}

// Delete removes the position for tokenID. Deleting a missing token is a
// no-op.
func (s *Store) Delete(ctx context.Context, tokenID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	positions, err := s.load()
	if err != nil {
		return err
	}
	if _, ok := positions[tokenID]; !ok {
		return nil
	}
	delete(positions, tokenID)
	return s.save(positions)
}

// List returns all stored positions in unspecified order.
func (s *Store) List(ctx context.Context) ([]domain.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	positions, err := s.load()
	if err != nil {
		return nil, err
	}
	out := make([]domain.Position, 0, len(positions))
	for _, pos := range positions {
		out = append(out, pos)
	}
	return out, nil
}

func (s *Store) load() (map[string]domain.Position, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("file: read %s: %w", s.path, err)
	}
	positions := map[string]domain.Position{}
	if len(data) == 0 {
		return positions, nil
	}
	if err := json.Unmarshal(data, &positions); err != nil {
		return nil, fmt.Errorf("file: decode %s: %w", s.path, err)
	}
	return positions, nil
}

func (s *Store) save(positions map[string]domain.Position) error {
	data, err := json.MarshalIndent(positions, "", "  ")
	if err != nil {
		return fmt.Errorf("file: encode snapshot: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".ledger-*.tmp")
	if err != nil {
		return fmt.Errorf("file: create temp: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("file: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("file: sync temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("file: close temp: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("file: replace %s: %w", s.path, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.LedgerStore = (*Store)(nil)
