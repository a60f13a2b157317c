package container

import (
	"github.com/conneroisu/jitserve/internal/logging"
)

// Options configures the default plugin set.
type Options struct {
	Root             string
	RuntimeSpecifier string
	Sourcemap        bool
	JSXImportSource  string
	Mode             string
	// Emitter receives the scoped CSS of loaded stylesheets.
	Emitter Emitter
	Logger  logging.Logger
}

// Default creates a container with the esbuild, css-modules and env plugins.
func Default(opts Options) *PluginContainer {
	return New(opts.Logger,
		NewCSSModules(opts.Root, opts.RuntimeSpecifier, opts.Emitter),
		NewTranspile(TranspileOptions{
			Sourcemap:       opts.Sourcemap,
			JSXImportSource: opts.JSXImportSource,
		}),
		NewEnv(opts.Mode),
	)
}

// DefaultFactory returns a Factory producing Default containers.
func DefaultFactory(opts Options) Factory {
	return func() Container {
		return Default(opts)
	}
}
