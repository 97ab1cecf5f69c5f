// Package library is the document model layer: the source of the items the
// search orchestrator iterates over. Stores provide ordered listings so
// search runs see documents in a stable order.
package library

import (
	"context"
	"time"
)

// Document is one managed document. It implements search.Item via SearchID
// and matcher.Source via Content.
type Document struct {
	ID        string    `json:"id"`
	Path      string    `json:"path"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

// SearchID returns the document's identity for search runs.
func (d Document) SearchID() string { return d.ID }

// Content returns the text the matcher reads.
func (d Document) Content() string { return d.Title + "\n" + d.Body }

// Store is the persistence port for documents.
type Store interface {
	// Put inserts a document. It fails with errors.ErrDocumentExists when
	// the ID is already present.
	Put(ctx context.Context, doc Document) error

	// Get fetches a document by ID, failing with errors.ErrDocumentNotFound
	// when absent.
	Get(ctx context.Context, id string) (Document, error)

	// List returns all documents ordered by path then ID.
	List(ctx context.Context) ([]Document, error)

	// Delete removes a document by ID, failing with
	// errors.ErrDocumentNotFound when absent.
	Delete(ctx context.Context, id string) error
}
