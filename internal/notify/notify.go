// Package notify hands the final digest to a human reviewer.
package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spigell/freelance-pipeline/internal/jobs"
)

const (
	KindNone     = "none"
	KindTelegram = "telegram"
	KindFile     = "file"
)

// ErrSkipped means delivery was deliberately not attempted.
var ErrSkipped = errors.New("digest delivery skipped")

// Digest is the ranked, proposal-bearing selection of one run.
type Digest struct {
	RunID string      `json:"run_id"`
	RunAt time.Time   `json:"run_at"`
	Jobs  []*jobs.Job `json:"jobs"`
}

// Subject is a one-line title for the digest.
func (d Digest) Subject() string {
	return fmt.Sprintf("Freelance Pipeline: %d matches (%s)", len(d.Jobs), d.RunAt.Format("Jan 02"))
}

type Notifier interface {
	Name() string
	Notify(ctx context.Context, d Digest) error
}

// Error is a failed delivery. Persisted jobs are not affected by it.
type Error struct {
	Notifier string
	Cause    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("notify %s: %v", e.Notifier, e.Cause)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// ConfirmFunc asks whether a digest should be delivered.
type ConfirmFunc func(d Digest) (bool, error)

type confirming struct {
	inner   Notifier
	confirm ConfirmFunc
}

// WithConfirmation wraps n so that delivery happens only after confirm agrees.
// A refusal is reported as ErrSkipped.
func WithConfirmation(n Notifier, confirm ConfirmFunc) Notifier {
	if confirm == nil {
		return n
	}
	return &confirming{inner: n, confirm: confirm}
}

func (c *confirming) Name() string { return c.inner.Name() }

func (c *confirming) Notify(ctx context.Context, d Digest) error {
	ok, err := c.confirm(d)
	if err != nil {
		return &Error{Notifier: c.inner.Name(), Cause: fmt.Errorf("confirm: %w", err)}
	}
	if !ok {
		return ErrSkipped
	}
	return c.inner.Notify(ctx, d)
}
