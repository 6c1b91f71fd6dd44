// Package feed fetches RSS/Atom feeds and normalizes their entries into jobs.
package feed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
	"go.uber.org/zap"

	"github.com/spigell/freelance-pipeline/internal/budget"
	"github.com/spigell/freelance-pipeline/internal/jobs"
	"github.com/spigell/freelance-pipeline/internal/logger"
	"github.com/spigell/freelance-pipeline/internal/utils"
)

const (
	DefaultTimeout   = 30 * time.Second
	DefaultUserAgent = "freelance-pipeline/1.0 (+feed reader)"

	maxBodySize = 10 << 20
)

// Source is a single configured feed.
type Source struct {
	URL     string        `mapstructure:"url" yaml:"url" validate:"required,url"`
	Source  string        `mapstructure:"source" yaml:"source,omitempty"`
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout,omitempty"`
}

// Tag returns the origin tag stamped on jobs from this feed.
func (s Source) Tag() string {
	if tag := strings.TrimSpace(s.Source); tag != "" {
		return tag
	}
	return jobs.DefaultSource
}

// Report counts what happened to the entries of one feed.
type Report struct {
	Entries   int
	Accepted  int
	Malformed []*MalformedEntryError
}

// Options configures an Ingestor.
type Options struct {
	UserAgent   string
	Timeout     time.Duration
	RatePerHost float64
	Burst       int
	HTTPClient  *http.Client
}

// Ingestor turns feed sources into candidate jobs.
type Ingestor struct {
	client    *http.Client
	limiter   *HostLimiter
	userAgent string
	timeout   time.Duration
	logger    *zap.Logger
}

func New(opts Options, log *zap.Logger) *Ingestor {
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{}
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	ua := strings.TrimSpace(opts.UserAgent)
	if ua == "" {
		ua = DefaultUserAgent
	}

	return &Ingestor{
		client:    client,
		limiter:   NewHostLimiter(opts.RatePerHost, opts.Burst),
		userAgent: ua,
		timeout:   timeout,
		logger:    logger.WithFields(log),
	}
}

// Fetch downloads and parses src. A failure of the whole feed is returned as
// *FetchError with no jobs; malformed entries are skipped and listed in the report.
func (i *Ingestor) Fetch(ctx context.Context, src Source) ([]*jobs.Job, Report, error) {
	log := logger.WithFields(i.logger, logger.FeedFields(src.URL, src.Tag())...)

	timeout := src.Timeout
	if timeout <= 0 {
		timeout = i.timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	parsed, err := i.download(ctx, src.URL)
	if err != nil {
		return nil, Report{}, &FetchError{Feed: src.URL, Cause: err}
	}

	out, report := Normalize(parsed, src)
	for _, m := range report.Malformed {
		log.Debug("skipping malformed entry", zap.Int("index", m.Index), zap.String("reason", m.Reason))
	}

	log.Debug("feed parsed",
		zap.Int("entries", report.Entries),
		zap.Int("accepted", report.Accepted),
		zap.Int("malformed", len(report.Malformed)),
	)

	return out, report, nil
}

func (i *Ingestor) download(ctx context.Context, url string) (*gofeed.Feed, error) {
	if err := i.limiter.WaitURL(ctx, url); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", i.userAgent)
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/xml;q=0.9, */*;q=0.8")

	resp, err := i.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("bad status: %s", resp.Status)
	}

	parsed, err := gofeed.NewParser().Parse(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}

	return parsed, nil
}

// Normalize converts parsed feed items into jobs, skipping entries that
// cannot be identified.
func Normalize(parsed *gofeed.Feed, src Source) ([]*jobs.Job, Report) {
	var report Report
	if parsed == nil {
		return nil, report
	}

	report.Entries = len(parsed.Items)
	out := make([]*jobs.Job, 0, len(parsed.Items))

	for idx, item := range parsed.Items {
		job, err := normalizeItem(item, src)
		if err != nil {
			report.Malformed = append(report.Malformed, &MalformedEntryError{
				Feed:   src.URL,
				Index:  idx,
				Reason: err.Error(),
			})
			continue
		}
		out = append(out, job)
	}

	report.Accepted = len(out)
	return out, report
}

func normalizeItem(item *gofeed.Item, src Source) (*jobs.Job, error) {
	if item == nil {
		return nil, errors.New("empty entry")
	}

	link := strings.TrimSpace(item.Link)
	id, err := jobs.NewID(link, item.GUID)
	if err != nil {
		return nil, err
	}

	title := CleanText(item.Title)
	if title == "" {
		title = jobs.DefaultTitle
	}

	raw := item.Description
	if strings.TrimSpace(raw) == "" {
		raw = item.Content
	}
	desc := StripMarkup(raw)

	return &jobs.Job{
		ID:          id,
		Title:       title,
		URL:         link,
		Description: utils.Cap(desc, jobs.MaxDescriptionLength),
		Budget:      budget.Extract(desc),
		Source:      src.Tag(),
	}, nil
}
