// sink.go — Sink: the alert dispatcher's write target. The three
// implementations below cover the pluggable-sink file, HTTP, and
// in-memory cases without naming concrete backends in this package —
// FileSink's JSONL-append-under-lock shape is grounded on the teacher's
// Capture.SaveSettingsToDisk (internal/capture/settings.go): marshal
// under a lock, write to disk, return the error.
package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"sync"

	"github.com/warpfusion/warpfusion/internal/alert"
)

// FileSink appends one JSON object per line to a file, guarded by an
// internal lock held only for the duration of a single write.
type FileSink struct {
	mu   sync.Mutex
	path string
	f    *os.File
}

// NewFileSink opens (creating/appending) the file at path.
func NewFileSink(path string) (*FileSink, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("sink: open %q: %w", path, err)
	}
	return &FileSink{path: path, f: f}, nil
}

func (s *FileSink) Write(ctx context.Context, rec alert.Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("sink: marshal alert %s: %w", rec.ID, err)
	}
	data = append(data, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.f.Write(data); err != nil {
		return fmt.Errorf("sink: write to %q: %w", s.path, err)
	}
	return nil
}

func (s *FileSink) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.f.Close()
}

// HTTPSink POSTs each alert as a JSON body to a configured URL.
type HTTPSink struct {
	mu     sync.Mutex
	url    string
	client *http.Client
}

// NewHTTPSink constructs an HTTPSink posting to url.
func NewHTTPSink(url string, client *http.Client) *HTTPSink {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPSink{url: url, client: client}
}

func (s *HTTPSink) Write(ctx context.Context, rec alert.Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("sink: marshal alert %s: %w", rec.ID, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("sink: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	s.mu.Lock()
	resp, err := s.client.Do(req)
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("sink: POST %q: %w", s.url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("sink: POST %q: unexpected status %d", s.url, resp.StatusCode)
	}
	return nil
}

func (s *HTTPSink) Stop(ctx context.Context) error { return nil }

// MemorySink is an in-process test double; it never fails and retains
// everything written.
type MemorySink struct {
	mu      sync.Mutex
	Records []alert.Record
	Stopped bool
}

func NewMemorySink() *MemorySink { return &MemorySink{} }

func (s *MemorySink) Write(ctx context.Context, rec alert.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Records = append(s.Records, rec)
	return nil
}

func (s *MemorySink) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Stopped = true
	return nil
}

// Snapshot returns a copy of everything written so far.
func (s *MemorySink) Snapshot() []alert.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]alert.Record, len(s.Records))
	copy(out, s.Records)
	return out
}
