package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Article is the archived form of a collected article.
type Article struct {
	ID              int64
	RunID           string
	Category        string
	URL             string
	Title           string
	Description     string
	Published       string
	Body            string
	Summary         string
	ContentHash     string
	Language        string
	ReadTimeMinutes int32
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Failure is an abandoned URL kept for a later run.
type Failure struct {
	RunID     string
	Category  string
	URL       string
	Attempts  int
	Exhausted bool
	Error     string
}

// DB is the subset of pgxpool.Pool the repository needs.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

type Repository struct {
	pool DB
}

func NewRepository(ctx context.Context, dbURL string) (*Repository, error) {
	cfg, err := pgxpool.ParseConfig(dbURL)
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return &Repository{pool: pool}, nil
}

func NewRepositoryWithDB(db DB) *Repository {
	return &Repository{pool: db}
}

func (r *Repository) Close() {
	r.pool.Close()
}

// SaveArticle upserts a by URL. It reports false without writing when an
// article with the same content hash is already archived.
func (r *Repository) SaveArticle(ctx context.Context, a *Article) (bool, error) {
	if a.ContentHash != "" {
		var existingID int64
		err := r.pool.QueryRow(ctx, "SELECT id FROM articles WHERE content_hash=$1 AND url<>$2", a.ContentHash, a.URL).Scan(&existingID)
		if err == nil {
			return false, nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return false, fmt.Errorf("lookup content hash: %w", err)
		}
	}
	query := `
INSERT INTO articles (url, run_id, category, title, description, published, body, summary, content_hash, language, read_time_minutes)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
ON CONFLICT (url) DO UPDATE SET
  run_id = EXCLUDED.run_id,
  title = EXCLUDED.title,
  description = EXCLUDED.description,
  published = EXCLUDED.published,
  body = EXCLUDED.body,
  summary = EXCLUDED.summary,
  content_hash = EXCLUDED.content_hash,
  language = EXCLUDED.language,
  read_time_minutes = EXCLUDED.read_time_minutes,
  updated_at = now()
RETURNING id
`
	err := r.pool.QueryRow(ctx, query,
		a.URL, a.RunID, a.Category, a.Title, a.Description, a.Published,
		a.Body, a.Summary, a.ContentHash, a.Language, a.ReadTimeMinutes,
	).Scan(&a.ID)
	if err != nil {
		return false, fmt.Errorf("save article %s: %w", a.URL, err)
	}
	return true, nil
}

func (r *Repository) RecordFailure(ctx context.Context, f Failure) error {
	_, err := r.pool.Exec(ctx,
		"INSERT INTO fetch_failures (run_id, category, url, attempts, exhausted, error) VALUES ($1,$2,$3,$4,$5,$6)",
		f.RunID, f.Category, f.URL, f.Attempts, f.Exhausted, f.Error)
	if err != nil {
		return fmt.Errorf("record failure %s: %w", f.URL, err)
	}
	return nil
}

// ResolveFailure marks every pending failure row of url as resolved.
func (r *Repository) ResolveFailure(ctx context.Context, url string) error {
	_, err := r.pool.Exec(ctx, "UPDATE fetch_failures SET resolved = true WHERE url=$1 AND NOT resolved", url)
	if err != nil {
		return fmt.Errorf("resolve failure %s: %w", url, err)
	}
	return nil
}

// PendingFailures lists unresolved failures of the given categories, one
// row per URL, most recent first within a URL.
func (r *Repository) PendingFailures(ctx context.Context, categories []string) ([]Failure, error) {
	rows, err := r.pool.Query(ctx, `
SELECT DISTINCT ON (url) run_id::text, category, url, attempts, exhausted, error
FROM fetch_failures
WHERE NOT resolved AND category = ANY($1)
ORDER BY url, created_at DESC`, categories)
	if err != nil {
		return nil, fmt.Errorf("query pending failures: %w", err)
	}
	defer rows.Close()

	var res []Failure
	for rows.Next() {
		var f Failure
		if err := rows.Scan(&f.RunID, &f.Category, &f.URL, &f.Attempts, &f.Exhausted, &f.Error); err != nil {
			return nil, err
		}
		res = append(res, f)
	}
	return res, rows.Err()
}
