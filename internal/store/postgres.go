package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spigell/freelance-pipeline/internal/jobs"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS jobs (
  id TEXT PRIMARY KEY,
  title TEXT NOT NULL,
  description TEXT NOT NULL,
  url TEXT NOT NULL DEFAULT '',
  budget TEXT NOT NULL,
  source TEXT NOT NULL,
  score INTEGER NOT NULL,
  proposal TEXT NOT NULL,
  proposal_source TEXT NOT NULL DEFAULT '',
  found_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_jobs_found_at ON jobs(found_at);
`

type postgresStore struct {
	pool *pgxpool.Pool
}

// OpenPostgres connects to a shared postgres seen-set.
func OpenPostgres(ctx context.Context, dsn string) (SeenStore, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, unavailable("open", fmt.Errorf("unable to parse database url: %w", err))
	}

	config.MaxConns = 4
	config.MaxConnLifetime = time.Hour
	// poolers in transaction mode do not keep prepared statements
	config.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeExec

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, unavailable("open", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, openTimeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, unavailable("open", err)
	}

	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, unavailable("migrate", err)
	}

	return &postgresStore{pool: pool}, nil
}

func (s *postgresStore) Ping(ctx context.Context) error {
	return unavailable("ping", s.pool.Ping(ctx))
}

func (s *postgresStore) Exists(ctx context.Context, id string) (bool, error) {
	var one int
	err := s.pool.QueryRow(ctx, `SELECT 1 FROM jobs WHERE id = $1 LIMIT 1`, id).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, unavailable("exists", err)
	}
	return true, nil
}

func (s *postgresStore) Insert(ctx context.Context, job *jobs.Job) (bool, error) {
	if err := checkInsertable(job); err != nil {
		return false, err
	}

	at := foundAt(job)
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO jobs (id, title, description, url, budget, source, score, proposal, proposal_source, found_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO NOTHING`,
		job.ID, job.Title, job.Description, job.URL, job.Budget, job.Source, job.Score,
		job.Proposal, job.ProposalSource, at,
	)
	if err != nil {
		return false, unavailable("insert", err)
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}

	job.FoundAt = at
	return true, nil
}

func (s *postgresStore) Recent(ctx context.Context, limit int) ([]*jobs.Job, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, title, description, url, budget, source, score, proposal, proposal_source, found_at
		FROM jobs
		ORDER BY found_at DESC, id
		LIMIT $1`, limit)
	if err != nil {
		return nil, unavailable("recent", err)
	}
	defer rows.Close()

	var out []*jobs.Job
	for rows.Next() {
		var j jobs.Job
		if err := rows.Scan(&j.ID, &j.Title, &j.Description, &j.URL, &j.Budget, &j.Source, &j.Score, &j.Proposal, &j.ProposalSource, &j.FoundAt); err != nil {
			return nil, unavailable("recent", err)
		}
		out = append(out, &j)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("recent", err)
	}
	return out, nil
}

func (s *postgresStore) Close() error {
	if s != nil && s.pool != nil {
		s.pool.Close()
	}
	return nil
}
