package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when a lookup matches no rows.
var ErrNotFound = errors.New("not found")

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// RecordAttempt stores an attempt and its chunk results atomically.
func (s *PostgresStore) RecordAttempt(ctx context.Context, attempt Attempt) error {
	if attempt.CreatedAt.IsZero() {
		attempt.CreatedAt = time.Now().UTC()
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin attempt tx: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO publish_attempts
			(id, document_id, strategy, title, owner, repo, branch, path, chunk_count, payload_bytes, outcome, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`,
		attempt.ID,
		attempt.DocumentID,
		attempt.Strategy,
		attempt.Title,
		attempt.Owner,
		attempt.Repo,
		attempt.Branch,
		attempt.Path,
		attempt.ChunkCount,
		attempt.PayloadBytes,
		attempt.Outcome,
		attempt.CreatedAt,
	); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("insert attempt: %w", err)
	}

	for _, c := range attempt.Chunks {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO publish_chunks (attempt_id, chunk_index, path, status_code, error)
			VALUES ($1, $2, $3, $4, $5)
		`, attempt.ID, c.Index, c.Path, c.StatusCode, c.Error); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("insert chunk %d: %w", c.Index, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit attempt: %w", err)
	}
	return nil
}

// ListAttempts returns the most recent attempts for documentID, newest first,
// each with its chunk results.
func (s *PostgresStore) ListAttempts(ctx context.Context, documentID string, limit int) ([]Attempt, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, document_id, strategy, title, owner, repo, branch, path, chunk_count, payload_bytes, outcome, created_at
		FROM publish_attempts
		WHERE document_id=$1
		ORDER BY created_at DESC
		LIMIT $2
	`, documentID, limit)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	items, err := scanAttempts(rows)
	if err != nil {
		return nil, err
	}

	for i := range items {
		chunks, err := s.listChunks(ctx, items[i].ID)
		if err != nil {
			return nil, err
		}
		items[i].Chunks = chunks
	}
	return items, nil
}

// GetAttempt loads one attempt with its chunk results.
func (s *PostgresStore) GetAttempt(ctx context.Context, id string) (Attempt, error) {
	var item Attempt
	err := s.db.QueryRowContext(ctx, `
		SELECT id, document_id, strategy, title, owner, repo, branch, path, chunk_count, payload_bytes, outcome, created_at
		FROM publish_attempts
		WHERE id=$1
	`, id).Scan(
		&item.ID,
		&item.DocumentID,
		&item.Strategy,
		&item.Title,
		&item.Owner,
		&item.Repo,
		&item.Branch,
		&item.Path,
		&item.ChunkCount,
		&item.PayloadBytes,
		&item.Outcome,
		&item.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return Attempt{}, ErrNotFound
	}
	if err != nil {
		return Attempt{}, fmt.Errorf("get attempt: %w", err)
	}
	chunks, err := s.listChunks(ctx, id)
	if err != nil {
		return Attempt{}, err
	}
	item.Chunks = chunks
	return item, nil
}

func (s *PostgresStore) listChunks(ctx context.Context, attemptID string) ([]ChunkRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT chunk_index, path, status_code, error
		FROM publish_chunks
		WHERE attempt_id=$1
		ORDER BY chunk_index ASC
	`, attemptID)
	if err != nil {
		return nil, fmt.Errorf("list chunks: %w", err)
	}
	defer rows.Close()

	items := make([]ChunkRecord, 0)
	for rows.Next() {
		var item ChunkRecord
		if err := rows.Scan(&item.Index, &item.Path, &item.StatusCode, &item.Error); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chunks: %w", err)
	}
	return items, nil
}

func scanAttempts(rows *sql.Rows) ([]Attempt, error) {
	defer rows.Close()
	items := make([]Attempt, 0)
	for rows.Next() {
		var item Attempt
		if err := rows.Scan(
			&item.ID,
			&item.DocumentID,
			&item.Strategy,
			&item.Title,
			&item.Owner,
			&item.Repo,
			&item.Branch,
			&item.Path,
			&item.ChunkCount,
			&item.PayloadBytes,
			&item.Outcome,
			&item.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan attempt: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attempts: %w", err)
	}
	return items, nil
}
