// Package postgres persists documents in PostgreSQL.
//
// It requires a `documents` table:
//
//	CREATE TABLE documents (
//	    id         TEXT PRIMARY KEY,
//	    path       TEXT NOT NULL,
//	    title      TEXT NOT NULL,
//	    body       TEXT NOT NULL,
//	    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
//	);
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/lib/pq"

	"github.com/calebmur/docfind/internal/library"
	pkgerrors "github.com/calebmur/docfind/pkg/errors"
	pkgpostgres "github.com/calebmur/docfind/pkg/postgres"
)

// uniqueViolation is the PostgreSQL error code for duplicate keys.
const uniqueViolation = "23505"

// Store implements library.Store on PostgreSQL.
type Store struct {
	db     *pkgpostgres.Client
	logger *slog.Logger
}

// New creates a Store on an existing client.
func New(db *pkgpostgres.Client) *Store {
	return &Store{
		db:     db,
		logger: slog.Default().With("component", "document-store"),
	}
}

func (s *Store) Put(ctx context.Context, doc library.Document) error {
	if doc.ID == "" {
		return fmt.Errorf("%w: document ID is required", pkgerrors.ErrInvalidInput)
	}
	_, err := s.db.DB.ExecContext(ctx,
		`INSERT INTO documents (id, path, title, body) VALUES ($1, $2, $3, $4)`,
		doc.ID, doc.Path, doc.Title, doc.Body,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
			return fmt.Errorf("%w: %s", pkgerrors.ErrDocumentExists, doc.ID)
		}
		return fmt.Errorf("inserting document %s: %w", doc.ID, err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id string) (library.Document, error) {
	var doc library.Document
	err := s.db.DB.QueryRowContext(ctx,
		`SELECT id, path, title, body, created_at FROM documents WHERE id = $1`,
		id,
	).Scan(&doc.ID, &doc.Path, &doc.Title, &doc.Body, &doc.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return library.Document{}, fmt.Errorf("%w: %s", pkgerrors.ErrDocumentNotFound, id)
	}
	if err != nil {
		return library.Document{}, fmt.Errorf("fetching document %s: %w", id, err)
	}
	return doc, nil
}

func (s *Store) List(ctx context.Context) ([]library.Document, error) {
	rows, err := s.db.DB.QueryContext(ctx,
		`SELECT id, path, title, body, created_at FROM documents ORDER BY path, id`,
	)
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}
	defer rows.Close()

	docs := make([]library.Document, 0)
	for rows.Next() {
		var doc library.Document
		if err := rows.Scan(&doc.ID, &doc.Path, &doc.Title, &doc.Body, &doc.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning document row: %w", err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating document rows: %w", err)
	}
	return docs, nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.db.DB.ExecContext(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting document %s: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking delete result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", pkgerrors.ErrDocumentNotFound, id)
	}
	return nil
}
