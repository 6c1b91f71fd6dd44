package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spigell/freelance-pipeline/internal/jobs"
)

// File writes the digest as JSON. Without a path it goes to a temporary file.
type File struct {
	path    string
	written string
}

func NewFile(path string) *File {
	return &File{path: strings.TrimSpace(path)}
}

func (f *File) Name() string { return KindFile }

// Written returns the path of the last written digest.
func (f *File) Written() string { return f.written }

func (f *File) Notify(_ context.Context, d Digest) error {
	if f.path == "" {
		list := &jobs.Jobs{Items: d.Jobs}
		name, err := list.DumpToTmpFile()
		if err != nil {
			return &Error{Notifier: f.Name(), Cause: err}
		}
		f.written = name
		return nil
	}

	payload, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return &Error{Notifier: f.Name(), Cause: fmt.Errorf("marshal digest: %w", err)}
	}

	if dir := filepath.Dir(f.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return &Error{Notifier: f.Name(), Cause: err}
		}
	}

	if err := os.WriteFile(f.path, payload, 0o644); err != nil {
		return &Error{Notifier: f.Name(), Cause: err}
	}
	f.written = f.path
	return nil
}
