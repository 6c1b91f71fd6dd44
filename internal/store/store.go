// Package store keeps the durable seen-set of processed jobs.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spigell/freelance-pipeline/internal/jobs"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"

	DefaultPath = "jobs.db"

	openTimeout = 5 * time.Second
)

// ErrNoProposal is returned when a job without proposal text is offered for insertion.
var ErrNoProposal = errors.New("job has no proposal")

// SeenStore is the dedup authority. Records are written at most once and never
// updated; inserting a known id is a no-op.
type SeenStore interface {
	Ping(ctx context.Context) error
	Exists(ctx context.Context, id string) (bool, error)
	// Insert stores job if its id is unknown and reports whether a row was added.
	Insert(ctx context.Context, job *jobs.Job) (bool, error)
	// Recent returns up to limit jobs, newest first.
	Recent(ctx context.Context, limit int) ([]*jobs.Job, error)
	Close() error
}

// Options selects and configures a backend.
type Options struct {
	Driver string
	Path   string
	DSN    string
}

// UnavailableError means the store could not be opened, read or written.
// A run cannot continue without the seen-set.
type UnavailableError struct {
	Op    string
	Cause error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("store unavailable (%s): %v", e.Op, e.Cause)
}

func (e *UnavailableError) Unwrap() error {
	return e.Cause
}

func unavailable(op string, err error) error {
	if err == nil {
		return nil
	}
	var ue *UnavailableError
	if errors.As(err, &ue) {
		return err
	}
	return &UnavailableError{Op: op, Cause: err}
}

// Open connects to the configured backend and makes sure its schema exists.
func Open(ctx context.Context, opts Options) (SeenStore, error) {
	driver := strings.ToLower(strings.TrimSpace(opts.Driver))
	switch driver {
	case "", DriverSQLite:
		path := strings.TrimSpace(opts.Path)
		if path == "" {
			path = DefaultPath
		}
		return OpenSQLite(ctx, path)
	case DriverPostgres:
		if strings.TrimSpace(opts.DSN) == "" {
			return nil, unavailable("open", errors.New("postgres dsn is empty"))
		}
		return OpenPostgres(ctx, opts.DSN)
	default:
		return nil, unavailable("open", fmt.Errorf("unknown driver %q", opts.Driver))
	}
}

func checkInsertable(job *jobs.Job) error {
	if job == nil {
		return errors.New("nil job")
	}
	if strings.TrimSpace(job.ID) == "" {
		return errors.New("job has no id")
	}
	if strings.TrimSpace(job.Proposal) == "" {
		return ErrNoProposal
	}
	return nil
}

func foundAt(job *jobs.Job) time.Time {
	if job.FoundAt.IsZero() {
		return time.Now().UTC()
	}
	return job.FoundAt.UTC()
}
