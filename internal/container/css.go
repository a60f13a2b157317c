package container

import (
	"context"
	"os"
	"sync"

	"github.com/conneroisu/jitserve/internal/cache"
	"github.com/conneroisu/jitserve/internal/cssmodule"
	"github.com/conneroisu/jitserve/internal/errors"
)

// Emitter receives assets produced while loading a module. An asset is
// stored only if its id has not been invalidated since version was read, so
// content derived from a superseded source is never cached.
type Emitter interface {
	Version(id string) uint64
	PutIfCurrent(id string, version uint64, content []byte) bool
}

// CSSModules loads stylesheets as proxy modules. Scoped stylesheets have
// their classes rewritten, and the scoped CSS is emitted under the
// stylesheet's own id so the proxy and the sheet it attaches agree.
type CSSModules struct {
	root             string
	runtimeSpecifier string
	emitter          Emitter

	mutex   sync.Mutex
	emitted []string
}

// NewCSSModules creates the plugin. emitter may be nil.
func NewCSSModules(root, runtimeSpecifier string, emitter Emitter) *CSSModules {
	return &CSSModules{
		root:             root,
		runtimeSpecifier: runtimeSpecifier,
		emitter:          emitter,
	}
}

func (c *CSSModules) Name() string {
	return "css-modules"
}

// Load returns proxy module code for stylesheet files.
func (c *CSSModules) Load(ctx context.Context, file string) (string, bool, error) {
	if !cache.IsStylesheet(file) {
		return "", false, nil
	}
	if err := ctx.Err(); err != nil {
		return "", false, err
	}

	id := cache.ModuleID(c.root, file)
	url := cache.WebPath(id)

	if !cache.IsScopedStylesheet(file) {
		return cssmodule.ProxyModule(c.runtimeSpecifier, url, nil), true, nil
	}

	var version uint64
	if c.emitter != nil {
		version = c.emitter.Version(id)
	}

	source, err := os.ReadFile(file)
	if err != nil {
		if os.IsNotExist(err) {
			return "", false, errors.ErrFileNotFound(file, err).WithModule(id)
		}
		return "", false, errors.ErrReadFailed(file, err).WithModule(id)
	}

	result, err := cssmodule.Transform(string(source), id)
	if err != nil {
		return "", false, errors.NewTransformError(errors.ErrCodeLoadFailed, "failed to scope stylesheet", err).
			WithModule(id).
			WithLocation(file, 0, 0)
	}

	c.emit(id, version, []byte(result.CSS))
	return cssmodule.ProxyModule(c.runtimeSpecifier, url, result.Classes), true, nil
}

// Emitted returns the ids emitted by this plugin instance. Ids whose emit was
// dropped by a concurrent invalidation are not listed.
func (c *CSSModules) Emitted() []string {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return append([]string(nil), c.emitted...)
}

func (c *CSSModules) emit(id string, version uint64, content []byte) {
	if c.emitter != nil && !c.emitter.PutIfCurrent(id, version, content) {
		return
	}

	c.mutex.Lock()
	c.emitted = append(c.emitted, id)
	c.mutex.Unlock()
}
