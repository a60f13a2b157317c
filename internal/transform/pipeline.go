package transform

import (
	"context"
	stderrors "errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/conneroisu/jitserve/internal/cache"
	"github.com/conneroisu/jitserve/internal/container"
	"github.com/conneroisu/jitserve/internal/cssmodule"
	"github.com/conneroisu/jitserve/internal/errors"
	"github.com/conneroisu/jitserve/internal/specifier"
	"golang.org/x/sync/singleflight"
)

const (
	ContentTypeJavaScript = "application/javascript;charset=utf-8"
	ContentTypeCSS        = "text/css;charset=utf-8"
)

// Request is the per-request input of a pipeline.
type Request struct {
	// Path is the cleaned request path.
	Path string
	// File is the absolute source file.
	File string
	// ID is the module id of File.
	ID string
}

// Result is the outcome of a pipeline. The zero value is NotHandled.
type Result struct {
	Handled     bool
	Content     []byte
	ContentType string
}

// NotHandled defers the request to the next handler.
var NotHandled = Result{}

func handled(content []byte, contentType string) Result {
	return Result{Handled: true, Content: content, ContentType: contentType}
}

// Pipelines runs the transform pipelines against a shared store.
type Pipelines struct {
	store     *cache.Store
	rewriter  *specifier.Rewriter
	container container.Container
	factory   container.Factory

	clientMu sync.RWMutex
	client   ClientConfig

	group singleflight.Group
}

// Config wires the collaborators of the pipelines.
type Config struct {
	Store *cache.Store
	// Container runs module transforms and resolves import.meta.
	Container container.Container
	// Factory builds the request-scoped container used for stylesheet proxies.
	Factory container.Factory
	Aliases map[string]string
	Client  ClientConfig
}

// New creates the pipelines.
func New(config Config) *Pipelines {
	store := config.Store
	if store == nil {
		store = cache.NewStore("")
	}
	factory := config.Factory
	if factory == nil {
		factory = func() container.Container { return config.Container }
	}

	p := &Pipelines{
		store:     store,
		container: config.Container,
		factory:   factory,
		client:    config.Client,
	}
	var importMeta func(string) (string, bool)
	if config.Container != nil {
		importMeta = config.Container.ResolveImportMeta
	}
	p.rewriter = specifier.New(config.Aliases, importMeta)
	return p
}

// Store returns the cache store used by the pipelines.
func (p *Pipelines) Store() *cache.Store {
	return p.store
}

// SetClientConfig replaces the runtime client configuration.
func (p *Pipelines) SetClientConfig(config ClientConfig) {
	p.clientMu.Lock()
	defer p.clientMu.Unlock()
	p.client = config
}

// Run executes the pipeline for kind.
func (p *Pipelines) Run(ctx context.Context, kind Kind, req Request) (Result, error) {
	var (
		result Result
		err    error
	)

	switch kind {
	case KindRuntimeClient:
		result, err = p.runtimeClient()
	case KindCSSModuleProxy:
		result, err = p.cssModuleProxy(ctx, req)
	case KindModule:
		result, err = p.module(ctx, req)
	case KindStylesheet:
		result, err = p.stylesheet(req)
	case KindPassthrough:
		return NotHandled, nil
	default:
		return NotHandled, fmt.Errorf("unknown pipeline %d", kind)
	}

	if stderrors.Is(err, container.ErrSkip) {
		return NotHandled, nil
	}
	return result, err
}

func (p *Pipelines) runtimeClient() (Result, error) {
	p.clientMu.RLock()
	config := p.client
	p.clientMu.RUnlock()

	content, err := RenderClient(config)
	if err != nil {
		return NotHandled, errors.NewInternalError(errors.ErrCodeInternalError, "failed to render runtime client", err)
	}
	return handled(content, ContentTypeJavaScript), nil
}

func (p *Pipelines) module(ctx context.Context, req Request) (Result, error) {
	if content, ok := p.store.Get(req.ID); ok {
		return handled(content, ContentTypeJavaScript), nil
	}
	if p.container == nil {
		return NotHandled, errors.NewInternalError(errors.ErrCodeInternalError, "no transform container configured", nil)
	}

	content, err := p.compute(req.ID, func() ([]byte, error) {
		source, err := readSource(req.File, req.ID)
		if err != nil {
			return nil, err
		}
		code, err := p.container.Transform(ctx, string(source), req.ID)
		if err != nil {
			return nil, err
		}
		code, err = p.rewriter.Rewrite(code, req.ID)
		if err != nil {
			return nil, err
		}
		return []byte(code), nil
	})
	if err != nil {
		return NotHandled, err
	}
	return handled(content, ContentTypeJavaScript), nil
}

func (p *Pipelines) cssModuleProxy(ctx context.Context, req Request) (Result, error) {
	if content, ok := p.store.Get(req.ID); ok {
		return handled(content, ContentTypeJavaScript), nil
	}

	file := strings.TrimSuffix(req.File, cache.ProxySuffix)
	content, err := p.compute(req.ID, func() ([]byte, error) {
		c := p.factory()
		if c == nil {
			return nil, errors.NewInternalError(errors.ErrCodeInternalError, "container factory returned nil", nil)
		}
		if err := c.BuildStart(ctx); err != nil {
			return nil, err
		}

		code, loaded, err := c.Load(ctx, file)
		if err != nil {
			return nil, err
		}
		if !loaded {
			source, err := readSource(file, req.ID)
			if err != nil {
				return nil, err
			}
			code = string(source)
		}

		code, err = c.Transform(ctx, code, req.ID)
		if err != nil {
			return nil, err
		}
		code, err = p.rewriter.WithImportMeta(c.ResolveImportMeta).Rewrite(code, req.ID)
		if err != nil {
			return nil, err
		}
		return []byte(code), nil
	})
	if err != nil {
		return NotHandled, err
	}
	return handled(content, ContentTypeJavaScript), nil
}

func (p *Pipelines) stylesheet(req Request) (Result, error) {
	if !cache.IsScopedStylesheet(req.File) {
		return NotHandled, nil
	}
	if content, ok := p.store.Get(req.ID); ok {
		return handled(content, ContentTypeCSS), nil
	}

	content, err := p.compute(req.ID, func() ([]byte, error) {
		source, err := readSource(req.File, req.ID)
		if err != nil {
			return nil, err
		}
		result, err := cssmodule.Transform(string(source), req.ID)
		if err != nil {
			return nil, errors.NewTransformError(errors.ErrCodeTransformFailed, "failed to scope stylesheet", err).
				WithModule(req.ID).
				WithLocation(req.File, 0, 0)
		}
		return []byte(result.CSS), nil
	})
	if err != nil {
		return NotHandled, err
	}
	return handled(content, ContentTypeCSS), nil
}

// compute runs fn once per id and cache version across concurrent callers
// and stores the result unless id was invalidated in the meantime.
func (p *Pipelines) compute(id string, fn func() ([]byte, error)) ([]byte, error) {
	version := p.store.Version(id)
	key := fmt.Sprintf("%s@%d", id, version)

	v, err, _ := p.group.Do(key, func() (interface{}, error) {
		content, err := fn()
		if err != nil {
			return nil, err
		}
		p.store.PutIfCurrent(id, version, content)
		return content, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

func readSource(file, id string) ([]byte, error) {
	source, err := os.ReadFile(file)
	if err == nil {
		return source, nil
	}
	if os.IsNotExist(err) {
		return nil, errors.ErrFileNotFound(file, err).WithModule(id)
	}
	return nil, errors.ErrReadFailed(file, err).WithModule(id)
}
