package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// PgFTS searches publish history using PostgreSQL full-text search. Only the
// latest attempt per strategy and document is considered.
type PgFTS struct {
	db *sql.DB
}

func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// The text match applies after picking the latest attempt, so an older
// attempt whose title matched never stands in for a newer one.
const latestAttempts = `
	SELECT l.document_id, l.strategy, l.title, l.owner, l.repo, l.path, l.outcome, l.created_at,
		ts_headline('simple', l.title, plainto_tsquery('simple', $1), 'MaxFragments=1,MaxWords=30') AS snippet,
		ts_rank(l.search_vector, plainto_tsquery('simple', $1)) AS rank
	FROM (
		SELECT DISTINCT ON (a.strategy, a.document_id) a.*
		FROM publish_attempts a
		%s
		ORDER BY a.strategy, a.document_id, a.created_at DESC
	) l
	WHERE l.search_vector @@ plainto_tsquery('simple', $1)`

func (p *PgFTS) Search(q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, 0, nil
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	where := ""
	args := []any{q.Text}
	if q.Strategy != "" {
		where = "WHERE a.strategy = $2"
		args = append(args, q.Strategy)
	}
	inner := fmt.Sprintf(latestAttempts, where)

	ctx := context.Background()

	var total int
	if err := p.db.QueryRowContext(ctx, "SELECT count(*) FROM ("+inner+") latest", args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pgfts count: %w", err)
	}

	dataQuery := fmt.Sprintf("SELECT * FROM (%s) latest ORDER BY rank DESC, created_at DESC LIMIT %d OFFSET %d", inner, limit, offset)
	rows, err := p.db.QueryContext(ctx, dataQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts search: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var (
			r           Result
			owner, repo string
			createdAt   time.Time
			rank        float64
		)
		if err := rows.Scan(&r.DocumentID, &r.Strategy, &r.Title, &owner, &repo, &r.Path, &r.Outcome, &createdAt, &r.Snippet, &rank); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		r.ID = RecordID(r.Strategy, r.DocumentID)
		r.Repo = owner + "/" + repo
		r.PublishedAt = createdAt.Unix()
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("pgfts rows: %w", err)
	}
	return results, total, nil
}

// LoadAllRecords reads the latest attempt of every document for reindexing.
func (p *PgFTS) LoadAllRecords(ctx context.Context) ([]PostRecord, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT DISTINCT ON (strategy, document_id)
			document_id, strategy, title, owner, repo, path, outcome, created_at
		FROM publish_attempts
		ORDER BY strategy, document_id, created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("load records: %w", err)
	}
	defer rows.Close()

	var records []PostRecord
	for rows.Next() {
		var (
			rec         PostRecord
			owner, repo string
			createdAt   time.Time
		)
		if err := rows.Scan(&rec.DocumentID, &rec.Strategy, &rec.Title, &owner, &repo, &rec.Path, &rec.Outcome, &createdAt); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		rec.ID = RecordID(rec.Strategy, rec.DocumentID)
		rec.Repo = owner + "/" + repo
		rec.PublishedAt = createdAt.Unix()
		records = append(records, rec)
	}
	return records, rows.Err()
}
