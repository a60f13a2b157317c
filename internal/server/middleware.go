package server

import (
	"context"
	"fmt"
	"net/http"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/conneroisu/jitserve/internal/cache"
	"github.com/conneroisu/jitserve/internal/errors"
	"github.com/conneroisu/jitserve/internal/logging"
	"github.com/conneroisu/jitserve/internal/metrics"
	"github.com/conneroisu/jitserve/internal/specifier"
	"github.com/conneroisu/jitserve/internal/transform"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "jitserve"

// ErrorSink receives pipeline errors. It reports only; the response is left to
// the next handler.
type ErrorSink func(ctx context.Context, err error)

// MiddlewareConfig wires the request handler.
type MiddlewareConfig struct {
	Root      string
	Pipelines *transform.Pipelines
	// OnError defaults to errors.ErrorHandler over Logger.
	OnError ErrorSink
	Logger  logging.Logger
	Metrics *metrics.Metrics
	// Profile logs every pipeline run with its duration.
	Profile bool
}

// Middleware transforms requests for source modules and defers everything
// else to the next handler.
type Middleware struct {
	root      string
	pipelines *transform.Pipelines
	onError   ErrorSink
	logger    logging.Logger
	metrics   *metrics.Metrics
	tracer    trace.Tracer
	profile   bool
}

type requestErrorKey struct{}

// RequestError returns the pipeline error attached to r by the middleware.
func RequestError(r *http.Request) error {
	err, _ := r.Context().Value(requestErrorKey{}).(error)
	return err
}

// WithRequestError attaches err to r.
func WithRequestError(r *http.Request, err error) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), requestErrorKey{}, err))
}

// NewMiddleware creates the request handler.
func NewMiddleware(config MiddlewareConfig) *Middleware {
	logger := config.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	pipelines := config.Pipelines
	if pipelines == nil {
		pipelines = transform.New(transform.Config{})
	}
	onError := config.OnError
	if onError == nil {
		onError = errors.NewErrorHandler(logger).Handle
	}
	return &Middleware{
		root:      filepath.Clean(config.Root),
		pipelines: pipelines,
		onError:   onError,
		logger:    logger.WithComponent("middleware"),
		metrics:   config.Metrics,
		tracer:    otel.Tracer(tracerName),
		profile:   config.Profile,
	}
}

// Handler wraps next.
func (m *Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			next.ServeHTTP(w, r)
			return
		}

		requestPath := path.Clean("/" + r.URL.Path)
		if strings.HasPrefix(requestPath+"/", specifier.NpmPrefix) {
			next.ServeHTTP(w, r)
			return
		}

		file, id, err := m.resolve(requestPath)
		if err != nil {
			m.fail(w, r, next, err)
			return
		}

		typedFile, typedID := transform.ResolveTyped(m.pipelines.Store(), file, id, transform.RefererExtension(r.Referer()))
		if typedID != id {
			requestPath += strings.TrimPrefix(typedID, id)
			file, id = typedFile, typedID
		}

		kind := transform.Select(requestPath)
		if kind == transform.KindPassthrough {
			next.ServeHTTP(w, r)
			return
		}

		ctx, span := m.tracer.Start(r.Context(), "jitserve."+kind.String(),
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("jitserve.path", requestPath),
				attribute.String("jitserve.module", id),
			),
		)
		defer span.End()

		var perf *logging.PerfLogger
		if m.profile {
			perf = logging.StartOperation(m.logger, "transform")
		}

		start := time.Now()
		result, err := m.pipelines.Run(ctx, kind, transform.Request{
			Path: requestPath,
			File: file,
			ID:   id,
		})
		elapsed := time.Since(start)

		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			m.metrics.ObservePipeline(kind.String(), metrics.OutcomeError, elapsed)
			if perf != nil {
				perf.EndWithError(ctx, err, "pipeline", kind.String(), "module", id)
			}
			m.fail(w, r.WithContext(ctx), next, err)
			return
		}

		if !result.Handled {
			span.SetAttributes(attribute.Bool("jitserve.handled", false))
			m.metrics.ObservePipeline(kind.String(), metrics.OutcomeNotHandled, elapsed)
			next.ServeHTTP(w, r)
			return
		}

		span.SetAttributes(
			attribute.Bool("jitserve.handled", true),
			attribute.Int("jitserve.bytes", len(result.Content)),
		)
		span.SetStatus(codes.Ok, "")
		m.metrics.ObservePipeline(kind.String(), metrics.OutcomeHandled, elapsed)
		if perf != nil {
			perf.End(ctx, "pipeline", kind.String(), "module", id)
		}

		contentType := result.ContentType
		if contentType == "" {
			contentType = transform.ContentType(requestPath)
		}

		header := w.Header()
		header.Set("Content-Type", contentType)
		header.Set("Content-Length", strconv.Itoa(len(result.Content)))
		header.Set("Cache-Control", "no-cache")
		header.Set("Server-Timing", serverTiming(kind, elapsed))
		w.WriteHeader(http.StatusOK)
		if r.Method == http.MethodHead {
			return
		}
		if _, err := w.Write(result.Content); err != nil {
			m.logger.Debug(ctx, "Response write failed", "module", id, "error", err.Error())
		}
	})
}

func (m *Middleware) fail(w http.ResponseWriter, r *http.Request, next http.Handler, err error) {
	m.onError(r.Context(), err)
	next.ServeHTTP(w, WithRequestError(r, err))
}

// resolve maps a cleaned request path onto a file under the root.
func (m *Middleware) resolve(requestPath string) (string, string, error) {
	file := filepath.Join(m.root, filepath.FromSlash(requestPath))
	rel, err := filepath.Rel(m.root, file)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", "", errors.ErrPathTraversal(requestPath)
	}
	return file, cache.ModuleID(m.root, file), nil
}

func serverTiming(kind transform.Kind, elapsed time.Duration) string {
	return fmt.Sprintf("%s;dur=%.3f", kind, float64(elapsed.Microseconds())/1000)
}
