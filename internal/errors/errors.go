package errors

import (
	"context"
	"fmt"
	"html"
	"strings"
	"sync"
	"time"
)

// Entry is a reported error together with the time it was reported.
type Entry struct {
	Err       error
	Timestamp time.Time
}

// ErrorCollector keeps the most recent errors reported by the request handler.
type ErrorCollector struct {
	entries []Entry
	limit   int
	mutex   sync.RWMutex
}

// NewErrorCollector creates a new error collector holding at most limit entries.
func NewErrorCollector(limit int) *ErrorCollector {
	if limit <= 0 {
		limit = 50
	}
	return &ErrorCollector{
		entries: make([]Entry, 0, limit),
		limit:   limit,
	}
}

// Add records an error, dropping the oldest entry when full.
func (ec *ErrorCollector) Add(err error) {
	if err == nil {
		return
	}
	ec.mutex.Lock()
	defer ec.mutex.Unlock()
	if len(ec.entries) == ec.limit {
		copy(ec.entries, ec.entries[1:])
		ec.entries = ec.entries[:len(ec.entries)-1]
	}
	ec.entries = append(ec.entries, Entry{Err: err, Timestamp: time.Now()})
}

// Sink returns an error sink that records into the collector and then hands
// the error to next.
func (ec *ErrorCollector) Sink(next func(ctx context.Context, err error)) func(ctx context.Context, err error) {
	return func(ctx context.Context, err error) {
		ec.Add(err)
		if next != nil {
			next(ctx, err)
		}
	}
}

// GetErrors returns a copy of the collected entries, oldest first.
func (ec *ErrorCollector) GetErrors() []Entry {
	ec.mutex.RLock()
	defer ec.mutex.RUnlock()
	result := make([]Entry, len(ec.entries))
	copy(result, ec.entries)
	return result
}

// HasErrors returns true if there are any errors
func (ec *ErrorCollector) HasErrors() bool {
	ec.mutex.RLock()
	defer ec.mutex.RUnlock()
	return len(ec.entries) > 0
}

// Clear clears all errors
func (ec *ErrorCollector) Clear() {
	ec.mutex.Lock()
	defer ec.mutex.Unlock()
	ec.entries = ec.entries[:0]
}

// ErrorOverlay renders an HTML page describing err.
func ErrorOverlay(err error) string {
	var b strings.Builder
	b.WriteString(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>jitserve: transform error</title></head>
<body style="margin:0;background:#1a202c;color:#e2e8f0;font-family:Monaco,Menlo,monospace;font-size:14px;">
<div style="max-width:1000px;margin:0 auto;padding:20px;">
<h2 style="color:#ff6b6b;">Transform Error</h2>
`)

	location := ""
	if e, ok := err.(*Error); ok {
		if e.FilePath != "" {
			location = fmt.Sprintf("%s:%d:%d", e.FilePath, e.Line, e.Column)
		} else if e.ModuleID != "" {
			location = e.ModuleID
		}
	}

	fmt.Fprintf(&b, `<div style="background:#2d3748;padding:15px;border-radius:4px;border-left:4px solid #ff6b6b;">
<pre style="white-space:pre-wrap;margin:0 0 10px 0;">%s</pre>
<div style="color:#a0aec0;font-size:12px;">%s</div>
</div>
</div>
</body>
</html>
`, html.EscapeString(err.Error()), html.EscapeString(location))

	return b.String()
}
