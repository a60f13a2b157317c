package cache

import (
	"path"
	"path/filepath"
	"strings"
)

// ProxySuffix is appended to a stylesheet id to name its generated proxy module.
const ProxySuffix = ".js"

// StyleExtensions are the stylesheet extensions served through the stylesheet
// pipeline and imported through proxy modules.
var StyleExtensions = []string{".css", ".scss", ".sass", ".less"}

// ModuleID derives the cache key for an absolute file path: the path relative
// to root, using forward slashes and no leading "./" or "/".
func ModuleID(root, file string) string {
	rel, err := filepath.Rel(root, file)
	if err != nil {
		rel = file
	}
	id := filepath.ToSlash(rel)
	id = strings.TrimPrefix(id, "./")
	return strings.TrimPrefix(id, "/")
}

// WebPath returns the root-relative URL path for a module id.
func WebPath(id string) string {
	return "/" + id
}

// IsStylesheet reports whether name (an id, URL path or file path) has a
// stylesheet extension, ignoring case.
func IsStylesheet(name string) bool {
	ext := strings.ToLower(path.Ext(filepath.ToSlash(name)))
	for _, e := range StyleExtensions {
		if ext == e {
			return true
		}
	}
	return false
}

// IsScopedStylesheet reports whether name uses the .module.<ext> naming whose
// classes are rewritten.
func IsScopedStylesheet(name string) bool {
	if !IsStylesheet(name) {
		return false
	}
	base := path.Base(filepath.ToSlash(name))
	base = strings.TrimSuffix(base, path.Ext(base))
	return strings.HasSuffix(strings.ToLower(base), ".module")
}

// ProxyID returns the id of the proxy module generated for a stylesheet id.
func ProxyID(stylesheetID string) string {
	return stylesheetID + ProxySuffix
}
