// Package specifier rewrites the module specifiers of generated JavaScript so
// that a browser can load them from the dev server: the runtime module maps to
// the runtime client route, stylesheet imports (.css, .scss, .sass, .less) map to their proxy modules and
// bare package names map to the package proxy route.
package specifier

import (
	"path"
	"sort"
	"strings"

	"github.com/conneroisu/jitserve/internal/cache"
	"github.com/conneroisu/jitserve/internal/errors"
)

const (
	// RuntimeSpecifier is the import name of the runtime client module.
	RuntimeSpecifier = "jitserve"
	// RuntimeClientPath is the reserved route serving the runtime client.
	RuntimeClientPath = "/_jitserve.js"
	// NpmPrefix is the route prefix handled by the package resolver.
	NpmPrefix = "/@npm/"
)

// Rewriter applies the specifier policy to generated modules.
type Rewriter struct {
	RuntimeSpecifier  string
	RuntimeClientPath string
	NpmPrefix         string

	// ImportMeta resolves import.meta.<prop>. A false result leaves the
	// expression untouched.
	ImportMeta func(prop string) (string, bool)

	aliases    map[string]string
	aliasOrder []string
}

// New creates a rewriter. Alias targets are project-root relative
// ("./src") and are served from the root ("/src").
func New(aliases map[string]string, importMeta func(prop string) (string, bool)) *Rewriter {
	r := &Rewriter{
		RuntimeSpecifier:  RuntimeSpecifier,
		RuntimeClientPath: RuntimeClientPath,
		NpmPrefix:         NpmPrefix,
		ImportMeta:        importMeta,
		aliases:           make(map[string]string, len(aliases)),
	}

	for from, to := range aliases {
		target := path.Clean("/" + strings.TrimPrefix(strings.TrimPrefix(to, "."), "/"))
		r.aliases[from] = target
		r.aliasOrder = append(r.aliasOrder, from)
	}
	// Longest alias wins.
	sort.Slice(r.aliasOrder, func(i, j int) bool {
		a, b := r.aliasOrder[i], r.aliasOrder[j]
		if len(a) != len(b) {
			return len(a) > len(b)
		}
		return a < b
	})

	return r
}

// WithImportMeta returns a copy of r resolving import.meta through fn.
func (r *Rewriter) WithImportMeta(fn func(prop string) (string, bool)) *Rewriter {
	clone := *r
	clone.ImportMeta = fn
	return &clone
}

// Rewrite rewrites every static import, re-export, dynamic import and
// import.meta property in code. id names the module in errors.
func (r *Rewriter) Rewrite(code, id string) (string, error) {
	s := &scanner{
		src:        code,
		specifier:  r.Specifier,
		importMeta: r.ImportMeta,
	}
	out, err := s.run()
	if err != nil {
		e := errors.NewTransformError(errors.ErrCodeRewriteFailed, "failed to rewrite specifiers", err).
			WithModule(id)
		if syn, ok := err.(*syntaxError); ok {
			e = e.WithLocation(id, syn.line, syn.column)
		}
		return "", e
	}
	return out, nil
}

// Specifier returns the browser-loadable form of spec.
func (r *Rewriter) Specifier(spec string) string {
	if spec == "" || isURL(spec) {
		return spec
	}

	if spec == r.RuntimeSpecifier {
		return r.RuntimeClientPath
	}

	spec = r.expandAlias(spec)

	if cache.IsStylesheet(spec) {
		spec = cache.ProxyID(spec)
	}

	if !isPath(spec) {
		spec = r.NpmPrefix + spec
	}

	return spec
}

func (r *Rewriter) expandAlias(spec string) string {
	for _, from := range r.aliasOrder {
		target := r.aliases[from]
		switch {
		case spec == from:
			return target
		case strings.HasSuffix(from, "/") && strings.HasPrefix(spec, from):
			return path.Join(target, spec[len(from):])
		case strings.HasPrefix(spec, from+"/"):
			return path.Join(target, spec[len(from)+1:])
		}
	}
	return spec
}

func isPath(spec string) bool {
	return strings.HasPrefix(spec, "./") || strings.HasPrefix(spec, "../") || strings.HasPrefix(spec, "/")
}

func isURL(spec string) bool {
	return strings.HasPrefix(spec, "http://") ||
		strings.HasPrefix(spec, "https://") ||
		strings.HasPrefix(spec, "data:") ||
		strings.HasPrefix(spec, "//")
}
