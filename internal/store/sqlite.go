package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/spigell/freelance-pipeline/internal/jobs"
)

// fixed width so found_at sorts lexically
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

type sqliteStore struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the sqlite database at path.
func OpenSQLite(ctx context.Context, path string) (SeenStore, error) {
	// modernc sqlite uses DSN like: file:foo.db?_pragma=busy_timeout(5000)
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)", path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, unavailable("open", err)
	}

	// one writer keeps INSERT OR IGNORE atomic per id
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, openTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, unavailable("open", err)
	}

	if err := migrateSQLite(ctx, db); err != nil {
		_ = db.Close()
		return nil, unavailable("migrate", err)
	}

	return &sqliteStore{db: db}, nil
}

func migrateSQLite(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var v int
	if err := tx.QueryRowContext(ctx, `PRAGMA user_version;`).Scan(&v); err != nil {
		return err
	}

	if v >= 1 {
		return tx.Commit()
	}

	if _, err := tx.ExecContext(ctx, `
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
  found_at TEXT NOT NULL
);
`); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_jobs_found_at ON jobs(found_at);`); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `PRAGMA user_version = 1;`); err != nil {
		return err
	}

	return tx.Commit()
}

func (s *sqliteStore) Ping(ctx context.Context) error {
	return unavailable("ping", s.db.PingContext(ctx))
}

func (s *sqliteStore) Exists(ctx context.Context, id string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM jobs WHERE id = ? LIMIT 1;`, id).Scan(&one)
	switch {
	case err == sql.ErrNoRows:
		return false, nil
	case err != nil:
		return false, unavailable("exists", err)
	}
	return true, nil
}

func (s *sqliteStore) Insert(ctx context.Context, job *jobs.Job) (bool, error) {
	if err := checkInsertable(job); err != nil {
		return false, err
	}

	at := foundAt(job)
	res, err := s.db.ExecContext(ctx, `
INSERT OR IGNORE INTO jobs (id, title, description, url, budget, source, score, proposal, proposal_source, found_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?);`,
		job.ID, job.Title, job.Description, job.URL, job.Budget, job.Source, job.Score,
		job.Proposal, job.ProposalSource, at.Format(timeLayout),
	)
	if err != nil {
		return false, unavailable("insert", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, unavailable("insert", err)
	}
	if n == 0 {
		return false, nil
	}

	job.FoundAt = at
	return true, nil
}

func (s *sqliteStore) Recent(ctx context.Context, limit int) ([]*jobs.Job, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT id, title, description, url, budget, source, score, proposal, proposal_source, found_at
FROM jobs
ORDER BY found_at DESC, id
LIMIT ?;`, limit)
	if err != nil {
		return nil, unavailable("recent", err)
	}
	defer rows.Close()

	var out []*jobs.Job
	for rows.Next() {
		var (
			j  jobs.Job
			at string
		)
		if err := rows.Scan(&j.ID, &j.Title, &j.Description, &j.URL, &j.Budget, &j.Source, &j.Score, &j.Proposal, &j.ProposalSource, &at); err != nil {
			return nil, unavailable("recent", err)
		}
		if t, err := time.Parse(timeLayout, at); err == nil {
			j.FoundAt = t
		}
		out = append(out, &j)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("recent", err)
	}
	return out, nil
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
