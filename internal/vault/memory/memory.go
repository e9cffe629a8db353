// Package memory implements an in-memory vault source for tests and
// throwaway sessions. A single source can serve several backends so test
// setups can model resolution order, encryption fallbacks and failing
// stores without touching a real keyring.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/benaskins/tessera/internal/vault"
)

// Source is an in-memory implementation of vault.Source.
type Source struct {
	mu       sync.Mutex
	backends []vault.Backend
	items    map[string][]vault.Entry
	failing  map[string]error
	readOnly map[string]bool
	nextRef  int
}

// New creates a source serving the given backends. With none given it
// serves a single encrypted schema-tagged backend named "memory".
func New(backends ...vault.Backend) *Source {
	if len(backends) == 0 {
		backends = []vault.Backend{{
			Source:    "memory",
			Handler:   vault.SecretsService,
			Encrypted: true,
		}}
	}
	return &Source{
		backends: backends,
		items:    make(map[string][]vault.Entry),
		failing:  make(map[string]error),
		readOnly: make(map[string]bool),
	}
}

// Enumerate lists the configured backends.
func (s *Source) Enumerate(ctx context.Context) ([]vault.Backend, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]vault.Backend, len(s.backends))
	copy(out, s.backends)
	return out, nil
}

// Fetch returns the backend's entries in insertion order.
func (s *Source) Fetch(ctx context.Context, b vault.Backend) ([]vault.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failing[b.Source]; err != nil {
		return nil, err
	}
	entries := s.items[b.Source]
	out := make([]vault.Entry, len(entries))
	copy(out, entries)
	return out, nil
}

// Store appends a new entry and returns its handle.
func (s *Source) Store(ctx context.Context, b vault.Backend, label, blob string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.readOnly[b.Source] {
		return "", fmt.Errorf("%s: %w", b.Source, vault.ErrNoSaver)
	}
	s.nextRef++
	ref := fmt.Sprintf("item-%d", s.nextRef)
	s.items[b.Source] = append(s.items[b.Source], vault.Entry{Label: label, Blob: blob, Ref: ref})
	return ref, nil
}

// Delete removes the entry with the given handle.
func (s *Source) Delete(ctx context.Context, b vault.Backend, ref string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries := s.items[b.Source]
	for i, e := range entries {
		if e.Ref == ref {
			s.items[b.Source] = append(entries[:i:i], entries[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("no item %s in %s", ref, b.Source)
}

// Seed inserts entries directly, bypassing the read-only flag.
func (s *Source) Seed(source string, entries ...vault.Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range entries {
		if e.Ref == "" {
			s.nextRef++
			e.Ref = fmt.Sprintf("item-%d", s.nextRef)
		}
		s.items[source] = append(s.items[source], e)
	}
}

// FailFetch makes every Fetch of the named backend return err.
func (s *Source) FailFetch(source string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failing[source] = err
}

// SetReadOnly makes every Store to the named backend return ErrNoSaver.
func (s *Source) SetReadOnly(source string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.readOnly[source] = true
}
