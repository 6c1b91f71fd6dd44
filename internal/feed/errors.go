package feed

import "fmt"

// FetchError means a whole feed could not be fetched or parsed.
// The run continues without that feed.
type FetchError struct {
	Feed  string
	Cause error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch feed %s: %v", e.Feed, e.Cause)
}

func (e *FetchError) Unwrap() error {
	return e.Cause
}

// MalformedEntryError describes a single feed entry that was skipped.
type MalformedEntryError struct {
	Feed   string
	Index  int
	Reason string
}

func (e *MalformedEntryError) Error() string {
	return fmt.Sprintf("feed %s entry %d: %s", e.Feed, e.Index, e.Reason)
}
