package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"schoolnotify/internal/model"
	"schoolnotify/pkg/metrics"
)

// Querier is the part of *pgxpool.Pool the repositories use.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Document is one row of the documents table.
type Document struct {
	ID        string
	Data      json.RawMessage
	UpdatedAt time.Time
}

// DocumentStore reads JSON documents keyed by (collection, id).
type DocumentStore struct {
	db     Querier
	logger *zap.Logger
}

func NewDocumentStore(db Querier, logger *zap.Logger) *DocumentStore {
	return &DocumentStore{
		db:     db,
		logger: logger.Named("documents"),
	}
}

// Get decodes collection/id into out. found is false when the document does
// not exist.
func (s *DocumentStore) Get(ctx context.Context, collection model.Collection, id string, out any) (found bool, err error) {
	start := time.Now()
	defer func() {
		metrics.RecordDBQueryDuration("get", string(collection), time.Since(start))
	}()

	query := `
		SELECT data
		FROM documents
		WHERE collection = $1 AND id = $2
	`
	var data []byte
	err = s.db.QueryRow(ctx, query, string(collection), id).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get %s/%s: %w", collection, id, err)
	}

	if err := json.Unmarshal(data, out); err != nil {
		return false, fmt.Errorf("decode %s/%s: %w", collection, id, err)
	}
	return true, nil
}

// List returns every document in collection ordered by id.
func (s *DocumentStore) List(ctx context.Context, collection model.Collection) ([]Document, error) {
	start := time.Now()
	defer func() {
		metrics.RecordDBQueryDuration("list", string(collection), time.Since(start))
	}()

	query := `
		SELECT id, data, updated_at
		FROM documents
		WHERE collection = $1
		ORDER BY id
	`
	return s.queryDocuments(ctx, query, string(collection))
}

// Find returns documents in collection matching the given filter clause. The
// clause refers to the document as data and its placeholders start at $2.
func (s *DocumentStore) Find(ctx context.Context, collection model.Collection, where string, args ...any) ([]Document, error) {
	start := time.Now()
	defer func() {
		metrics.RecordDBQueryDuration("find", string(collection), time.Since(start))
	}()

	query := `
		SELECT id, data, updated_at
		FROM documents
		WHERE collection = $1 AND ` + where + `
		ORDER BY id
	`
	return s.queryDocuments(ctx, query, append([]any{string(collection)}, args...)...)
}

func (s *DocumentStore) queryDocuments(ctx context.Context, query string, args ...any) ([]Document, error) {
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var d Document
		var data []byte
		if err := rows.Scan(&d.ID, &data, &d.UpdatedAt); err != nil {
			return nil, err
		}
		d.Data = data
		docs = append(docs, d)
	}
	return docs, rows.Err()
}
