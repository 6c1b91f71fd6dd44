package feed

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/mmcdole/gofeed"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spigell/freelance-pipeline/internal/jobs"
)

const sampleRSS = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
<channel>
  <title>Jobs</title>
  <link>https://jobs.example.com</link>
  <description>Latest jobs</description>
  <item>
    <title>Python scraper needed</title>
    <link>https://jobs.example.com/1</link>
    <guid>job-1</guid>
    <description><![CDATA[<p>Build a <b>scraper</b>.</p><p>Budget: $300</p>]]></description>
  </item>
  <item>
    <title></title>
    <guid isPermaLink="false">job-2</guid>
    <description>No link here</description>
  </item>
  <item>
    <title>Nothing to identify</title>
    <description>orphan</description>
  </item>
</channel>
</rss>`

func serve(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestFetchNormalizesEntries(t *testing.T) {
	srv := serve(t, http.StatusOK, sampleRSS)
	ing := New(Options{}, nil)

	got, report, err := ing.Fetch(context.Background(), Source{URL: srv.URL, Source: "upwork"})
	require.NoError(t, err)

	assert.Equal(t, 3, report.Entries)
	assert.Equal(t, 2, report.Accepted)
	require.Len(t, report.Malformed, 1)
	assert.Equal(t, 2, report.Malformed[0].Index)

	require.Len(t, got, 2)

	first := got[0]
	wantID, _ := jobs.NewID("https://jobs.example.com/1", "")
	assert.Equal(t, wantID, first.ID)
	assert.Equal(t, "Python scraper needed", first.Title)
	assert.Equal(t, "Build a scraper . Budget: $300", first.Description)
	assert.Equal(t, "$300", first.Budget)
	assert.Equal(t, "upwork", first.Source)

	second := got[1]
	wantID, _ = jobs.NewID("", "job-2")
	assert.Equal(t, wantID, second.ID)
	assert.Equal(t, jobs.DefaultTitle, second.Title)
	assert.Equal(t, jobs.NotSpecified, second.Budget)
}

func TestFetchDefaultsSourceTag(t *testing.T) {
	srv := serve(t, http.StatusOK, sampleRSS)
	got, _, err := New(Options{}, nil).Fetch(context.Background(), Source{URL: srv.URL})
	require.NoError(t, err)
	require.NotEmpty(t, got)
	assert.Equal(t, jobs.DefaultSource, got[0].Source)
}

func TestFetchBadStatus(t *testing.T) {
	srv := serve(t, http.StatusInternalServerError, "boom")

	got, _, err := New(Options{}, nil).Fetch(context.Background(), Source{URL: srv.URL})
	require.Error(t, err)
	assert.Nil(t, got)

	var fe *FetchError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, srv.URL, fe.Feed)
	assert.Contains(t, err.Error(), "500")
}

func TestFetchUnparseableBody(t *testing.T) {
	srv := serve(t, http.StatusOK, "this is not a feed")

	_, _, err := New(Options{}, nil).Fetch(context.Background(), Source{URL: srv.URL})
	var fe *FetchError
	require.ErrorAs(t, err, &fe)
}

func TestFetchTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	t.Cleanup(srv.Close)

	_, _, err := New(Options{}, nil).Fetch(context.Background(), Source{URL: srv.URL, Timeout: 50 * time.Millisecond})
	var fe *FetchError
	require.ErrorAs(t, err, &fe)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestNormalizeCapsDescription(t *testing.T) {
	long := strings.Repeat("a", 2500)
	parsed := &gofeed.Feed{Items: []*gofeed.Item{
		{Title: "t", Link: "https://example.com/x", Description: long},
		nil,
	}}

	got, report := Normalize(parsed, Source{URL: "mem"})
	require.Len(t, got, 1)
	assert.Len(t, []rune(got[0].Description), jobs.MaxDescriptionLength)
	assert.Len(t, report.Malformed, 1)
	assert.Equal(t, 1, report.Malformed[0].Index)
}

func TestNormalizeFallsBackToContent(t *testing.T) {
	parsed := &gofeed.Feed{Items: []*gofeed.Item{
		{Title: "t", Link: "https://example.com/x", Content: "<div>Fixed price 250 USD</div>"},
	}}

	got, _ := Normalize(parsed, Source{})
	require.Len(t, got, 1)
	assert.Equal(t, "Fixed price 250 USD", got[0].Description)
	assert.Equal(t, "250 USD", got[0].Budget)
}

func TestStripMarkup(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "empty", in: "   ", want: ""},
		{name: "plain", in: "hello   world\n", want: "hello world"},
		{name: "tags", in: "<p>one</p><p>two</p>", want: "one two"},
		{name: "script dropped", in: "<p>keep</p><script>var x = 1;</script>", want: "keep"},
		{name: "entities", in: "a&nbsp;&amp;&nbsp;b", want: "a & b"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StripMarkup(tt.in))
		})
	}
}
