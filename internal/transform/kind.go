// Package transform selects and runs the pipeline that turns a requested
// source file into browser-ready content.
package transform

import (
	"path"
	"strings"

	"github.com/conneroisu/jitserve/internal/cache"
	"github.com/conneroisu/jitserve/internal/specifier"
)

// Kind identifies a pipeline.
type Kind int

const (
	KindPassthrough Kind = iota
	KindRuntimeClient
	KindCSSModuleProxy
	KindModule
	KindStylesheet
)

// String returns the pipeline name used in Server-Timing headers and metrics.
func (k Kind) String() string {
	switch k {
	case KindRuntimeClient:
		return "runtimeClient"
	case KindCSSModuleProxy:
		return "cssModuleProxy"
	case KindModule:
		return "module"
	case KindStylesheet:
		return "stylesheet"
	case KindPassthrough:
		return "passthrough"
	default:
		return "unknown"
	}
}

// Kinds lists every pipeline.
var Kinds = []Kind{KindRuntimeClient, KindCSSModuleProxy, KindModule, KindStylesheet, KindPassthrough}

// ModuleExtensions are served through the module pipeline.
var ModuleExtensions = []string{".js", ".mjs", ".cjs", ".jsx", ".ts", ".mts", ".cts", ".tsx"}

// Select picks the pipeline for a cleaned request path.
func Select(requestPath string) Kind {
	if requestPath == specifier.RuntimeClientPath {
		return KindRuntimeClient
	}

	ext := strings.ToLower(path.Ext(requestPath))
	if ext == cache.ProxySuffix {
		if cache.IsStylesheet(strings.TrimSuffix(requestPath, path.Ext(requestPath))) {
			return KindCSSModuleProxy
		}
	}

	switch {
	case contains(ModuleExtensions, ext):
		return KindModule
	case cache.IsStylesheet(requestPath):
		return KindStylesheet
	default:
		return KindPassthrough
	}
}

// ContentType returns the default response type for a path's extension.
func ContentType(requestPath string) string {
	switch Select(requestPath) {
	case KindRuntimeClient, KindCSSModuleProxy, KindModule:
		return ContentTypeJavaScript
	case KindStylesheet:
		return ContentTypeCSS
	}
	return ""
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
