package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorString(t *testing.T) {
	cause := stderrors.New("unexpected token")
	err := NewTransformError(ErrCodeTransformFailed, "transpile failed", cause).
		WithModule("src/app.tsx").
		WithLocation("/proj/src/app.tsx", 3, 7)

	s := err.Error()
	assert.Contains(t, s, "[ERR_TRANSFORM_FAILED]")
	assert.Contains(t, s, "module:src/app.tsx")
	assert.Contains(t, s, "/proj/src/app.tsx:3:7")
	assert.Contains(t, s, "unexpected token")
	assert.Equal(t, cause, stderrors.Unwrap(err))
}

func TestErrorIs(t *testing.T) {
	a := NewIOError(ErrCodeFileNotFound, "a", nil)
	b := NewIOError(ErrCodeFileNotFound, "b", nil)
	c := NewIOError(ErrCodeReadFailed, "c", nil)

	assert.True(t, stderrors.Is(a, b))
	assert.False(t, stderrors.Is(a, c))
}

func TestErrorClassification(t *testing.T) {
	wrapped := fmt.Errorf("outer: %w", NewTransformError(ErrCodeTransformFailed, "x", nil))

	assert.True(t, IsTransformError(wrapped))
	assert.True(t, IsRecoverable(wrapped))
	assert.False(t, IsIOError(wrapped))
	assert.True(t, IsIOError(ErrFileNotFound("/x", nil)))
	assert.False(t, IsRecoverable(NewConfigError(ErrCodeConfigInvalid, "bad")))
	assert.False(t, IsRecoverable(stderrors.New("plain")))
}

type recordingLogger struct {
	mu    sync.Mutex
	warns []string
	errs  []string
}

func (l *recordingLogger) Error(ctx context.Context, err error, msg string, fields ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errs = append(l.errs, msg)
}

func (l *recordingLogger) Warn(ctx context.Context, err error, msg string, fields ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.warns = append(l.warns, msg)
}

func TestErrorHandler(t *testing.T) {
	logger := &recordingLogger{}
	handler := NewErrorHandler(logger)
	ctx := context.Background()

	handler.Handle(ctx, nil)
	handler.Handle(ctx, NewTransformError(ErrCodeTransformFailed, "bad syntax", nil))
	handler.Handle(ctx, ErrFileNotFound("/missing.ts", nil))
	handler.Handle(ctx, stderrors.New("boom"))
	handler.Handle(ctx, NewInternalError(ErrCodeInternalError, "broken", nil))
	handler.Handle(ctx, &Error{Type: ErrorTypeInternal, Code: ErrCodeInternalError, Message: "retry", Recoverable: true})

	assert.Equal(t, []string{"Transform failed", "I/O error occurred", "Error occurred"}, logger.warns)
	assert.Equal(t, []string{"Unhandled error occurred", "Error occurred"}, logger.errs)
}

func TestErrorCollector(t *testing.T) {
	collector := NewErrorCollector(2)
	assert.False(t, collector.HasErrors())

	collector.Add(nil)
	assert.False(t, collector.HasErrors())

	collector.Add(stderrors.New("one"))
	collector.Add(stderrors.New("two"))
	collector.Add(stderrors.New("three"))

	entries := collector.GetErrors()
	require.Len(t, entries, 2)
	assert.EqualError(t, entries[0].Err, "two")
	assert.EqualError(t, entries[1].Err, "three")

	collector.Clear()
	assert.False(t, collector.HasErrors())
}

func TestErrorCollectorSink(t *testing.T) {
	collector := NewErrorCollector(10)
	var forwarded error
	sink := collector.Sink(func(ctx context.Context, err error) { forwarded = err })

	err := stderrors.New("forward me")
	sink(context.Background(), err)

	assert.Equal(t, err, forwarded)
	assert.Len(t, collector.GetErrors(), 1)
}

func TestErrorOverlayEscapes(t *testing.T) {
	err := NewTransformError(ErrCodeTransformFailed, "<script>alert(1)</script>", nil).
		WithLocation("src/a.ts", 1, 2)

	page := ErrorOverlay(err)
	assert.Contains(t, page, "Transform Error")
	assert.Contains(t, page, "&lt;script&gt;")
	assert.NotContains(t, page, "<script>alert")
	assert.Contains(t, page, "src/a.ts:1:2")
}
