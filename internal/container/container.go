// Package container runs the transform plugins used by the pipelines. A
// container is an ordered plugin chain exposing build, watch, load,
// transform and import.meta hooks.
package container

import (
	"context"
	"errors"
	"fmt"

	"github.com/conneroisu/jitserve/internal/logging"
)

// ErrSkip is returned by Transform or Load when a plugin declines the module.
// The pipelines treat it as "not handled".
var ErrSkip = errors.New("container: skip")

// Container is the contract the pipelines and the watcher rely on.
type Container interface {
	BuildStart(ctx context.Context) error
	WatchChange(ctx context.Context, absPath string)
	Transform(ctx context.Context, code, id string) (string, error)
	ResolveImportMeta(prop string) (string, bool)
	// Load returns the source for file. A false result means no plugin
	// loaded it and the caller reads it from disk.
	Load(ctx context.Context, file string) (string, bool, error)
}

// Factory builds a fresh container. Pipelines that emit assets use one
// container per request so emitted ids never collide between requests.
type Factory func() Container

// Plugin is the base interface; hooks are discovered through the optional
// interfaces below.
type Plugin interface {
	Name() string
}

// BuildStartPlugin runs once before the first transform.
type BuildStartPlugin interface {
	BuildStart(ctx context.Context) error
}

// WatchChangePlugin is notified of every filesystem change.
type WatchChangePlugin interface {
	WatchChange(ctx context.Context, absPath string)
}

// TransformPlugin rewrites module code. It returns the input unchanged for
// modules it does not handle.
type TransformPlugin interface {
	Transform(ctx context.Context, code, id string) (string, error)
}

// LoadPlugin provides module source ahead of the filesystem.
type LoadPlugin interface {
	Load(ctx context.Context, file string) (string, bool, error)
}

// ImportMetaPlugin resolves import.meta properties.
type ImportMetaPlugin interface {
	ResolveImportMeta(prop string) (string, bool)
}

// PluginContainer runs plugins in registration order.
type PluginContainer struct {
	plugins []Plugin
	logger  logging.Logger
}

// New creates a container running plugins in order.
func New(logger logging.Logger, plugins ...Plugin) *PluginContainer {
	if logger == nil {
		logger = logging.Discard()
	}
	return &PluginContainer{
		plugins: plugins,
		logger:  logger.WithComponent("container"),
	}
}

// Plugins returns the registered plugins.
func (c *PluginContainer) Plugins() []Plugin {
	return c.plugins
}

// BuildStart runs every BuildStart hook and stops at the first failure.
func (c *PluginContainer) BuildStart(ctx context.Context) error {
	for _, p := range c.plugins {
		hook, ok := p.(BuildStartPlugin)
		if !ok {
			continue
		}
		if err := hook.BuildStart(ctx); err != nil {
			return fmt.Errorf("plugin %s: build start: %w", p.Name(), err)
		}
	}
	return nil
}

// WatchChange forwards a change to every plugin.
func (c *PluginContainer) WatchChange(ctx context.Context, absPath string) {
	c.logger.Debug(ctx, "Change forwarded to plugins", "path", absPath)
	for _, p := range c.plugins {
		if hook, ok := p.(WatchChangePlugin); ok {
			hook.WatchChange(ctx, absPath)
		}
	}
}

// Transform threads code through every transform hook.
func (c *PluginContainer) Transform(ctx context.Context, code, id string) (string, error) {
	for _, p := range c.plugins {
		hook, ok := p.(TransformPlugin)
		if !ok {
			continue
		}
		out, err := hook.Transform(ctx, code, id)
		if err != nil {
			return "", err
		}
		code = out
	}
	return code, nil
}

// ResolveImportMeta returns the first value a plugin resolves for prop.
func (c *PluginContainer) ResolveImportMeta(prop string) (string, bool) {
	for _, p := range c.plugins {
		if hook, ok := p.(ImportMetaPlugin); ok {
			if value, ok := hook.ResolveImportMeta(prop); ok {
				return value, true
			}
		}
	}
	return "", false
}

// Load returns the source from the first plugin that loads file.
func (c *PluginContainer) Load(ctx context.Context, file string) (string, bool, error) {
	for _, p := range c.plugins {
		hook, ok := p.(LoadPlugin)
		if !ok {
			continue
		}
		code, loaded, err := hook.Load(ctx, file)
		if err != nil {
			return "", false, err
		}
		if loaded {
			return code, true, nil
		}
	}
	return "", false, nil
}
