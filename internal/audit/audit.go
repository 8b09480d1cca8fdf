// Package audit records moderation and authentication events separately from
// the application log. Application logs are ephemeral debug output; the audit
// trail is an append-only record of who approved, rejected, deleted, or
// re-configured what, kept for accountability and incident review. Entries can
// be written to a local JSON-lines file, POSTed to an external collector, or
// both, via the Sink interface.
package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"
)

// Entry is a single audit record.
type Entry struct {
	Timestamp    time.Time      `json:"timestamp"`
	Action       string         `json:"action"`
	ActorID      string         `json:"actor_id,omitempty"`
	ResourceType string         `json:"resource_type,omitempty"`
	ResourceID   string         `json:"resource_id,omitempty"`
	IPAddress    string         `json:"ip_address,omitempty"`
	RequestID    string         `json:"request_id,omitempty"`
	StatusCode   int            `json:"status_code,omitempty"`
	Details      map[string]any `json:"details,omitempty"`
}

// Sink receives audit entries for one destination.
type Sink interface {
	Write(ctx context.Context, entry *Entry) error
	Close() error
}

// Trail fans each entry out to every configured sink. A sink failure is logged
// and does not prevent delivery to the remaining sinks.
type Trail struct {
	mu    sync.RWMutex
	sinks []Sink
}

// NewTrail creates a trail over the given sinks.
func NewTrail(sinks ...Sink) *Trail {
	return &Trail{sinks: sinks}
}

// Record delivers the entry to all sinks and returns the last error, if any.
func (t *Trail) Record(ctx context.Context, entry *Entry) error {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var lastErr error
	for _, sink := range t.sinks {
		if err := sink.Write(ctx, entry); err != nil {
			lastErr = err
			slog.Warn("audit sink write failed", "error", err)
		}
	}
	return lastErr
}

// Close closes all sinks.
func (t *Trail) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	var lastErr error
	for _, sink := range t.sinks {
		if err := sink.Close(); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

// FileSink appends entries as JSON lines to a local file, rotating once the
// file exceeds maxSizeMB (a single .1 backup is kept).
type FileSink struct {
	path      string
	maxSizeMB int
	mu        sync.Mutex
	file      *os.File
}

// NewFileSink opens (or creates) the audit log file at path.
func NewFileSink(path string, maxSizeMB int) (*FileSink, error) {
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit log file: %w", err)
	}
	return &FileSink{path: path, maxSizeMB: maxSizeMB, file: file}, nil
}

func (fs *FileSink) Write(_ context.Context, entry *Entry) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if fs.maxSizeMB > 0 {
		if info, err := fs.file.Stat(); err == nil && info.Size() > int64(fs.maxSizeMB)*1024*1024 {
			if err := fs.rotate(); err != nil {
				slog.Warn("audit log rotation failed", "error", err)
			}
		}
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal audit entry: %w", err)
	}
	if _, err := fs.file.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write audit entry: %w", err)
	}
	return nil
}

func (fs *FileSink) rotate() error {
	if err := fs.file.Close(); err != nil {
		return err
	}
	_ = os.Rename(fs.path, fs.path+".1")

	file, err := os.OpenFile(fs.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return err
	}
	fs.file = file
	return nil
}

func (fs *FileSink) Close() error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.file.Close()
}

// WebhookSink POSTs each entry as JSON to an external collector.
type WebhookSink struct {
	url    string
	client *http.Client
}

// NewWebhookSink creates a sink that delivers entries to url. A zero timeout
// defaults to 10 seconds.
func NewWebhookSink(url string, timeout time.Duration) *WebhookSink {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &WebhookSink{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

func (ws *WebhookSink) Write(ctx context.Context, entry *Entry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal audit entry: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ws.url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to create audit webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := ws.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send audit webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("audit webhook returned status %d", resp.StatusCode)
	}
	return nil
}

func (ws *WebhookSink) Close() error {
	return nil
}
