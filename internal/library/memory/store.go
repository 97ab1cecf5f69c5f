// Package memory provides an in-memory document store for development and
// tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/calebmur/docfind/internal/library"
	pkgerrors "github.com/calebmur/docfind/pkg/errors"
)

// Store keeps documents in a mutex-guarded map.
type Store struct {
	mu   sync.RWMutex
	docs map[string]library.Document
}

// New creates an empty Store.
func New() *Store {
	return &Store{docs: make(map[string]library.Document)}
}

func (s *Store) Put(ctx context.Context, doc library.Document) error {
	if doc.ID == "" {
		return fmt.Errorf("%w: document ID is required", pkgerrors.ErrInvalidInput)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.docs[doc.ID]; exists {
		return fmt.Errorf("%w: %s", pkgerrors.ErrDocumentExists, doc.ID)
	}
	s.docs[doc.ID] = doc
	return nil
}

func (s *Store) Get(ctx context.Context, id string) (library.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, exists := s.docs[id]
	if !exists {
		return library.Document{}, fmt.Errorf("%w: %s", pkgerrors.ErrDocumentNotFound, id)
	}
	return doc, nil
}

func (s *Store) List(ctx context.Context) ([]library.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	docs := make([]library.Document, 0, len(s.docs))
	for _, doc := range s.docs {
		docs = append(docs, doc)
	}
	sort.Slice(docs, func(i, j int) bool {
		if docs[i].Path != docs[j].Path {
			return docs[i].Path < docs[j].Path
		}
		return docs[i].ID < docs[j].ID
	})
	return docs, nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.docs[id]; !exists {
		return fmt.Errorf("%w: %s", pkgerrors.ErrDocumentNotFound, id)
	}
	delete(s.docs, id)
	return nil
}

// Len returns the number of stored documents.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs)
}
