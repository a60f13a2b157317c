package transform

import (
	"net/url"
	"os"
	"path"
	"strings"
)

// typedExtensions mark referers whose imports conventionally omit the source
// extension.
var typedExtensions = []string{".ts", ".tsx", ".mts", ".jsx"}

// Lookup reports whether an id is cached.
type Lookup interface {
	Has(id string) bool
}

// ResolveTyped finds the concrete source for an extensionless import made by
// a typed module. When refererExt is typed and file has no extension of two
// or more letters, it tries the cache for id+".tsx" and id+".ts", then the
// disk for file+".tsx" and file+".ts". The first match wins; otherwise file
// and id are returned unchanged.
func ResolveTyped(store Lookup, file, id, refererExt string) (string, string) {
	if !contains(typedExtensions, strings.ToLower(refererExt)) {
		return file, id
	}
	if ext := path.Ext(id); len(ext) > 2 {
		return file, id
	}

	candidates := []string{".tsx", ".ts"}
	if store != nil {
		for _, ext := range candidates {
			if store.Has(id + ext) {
				return file + ext, id + ext
			}
		}
	}
	for _, ext := range candidates {
		if info, err := os.Stat(file + ext); err == nil && !info.IsDir() {
			return file + ext, id + ext
		}
	}
	return file, id
}

// RefererExtension returns the extension of the path in a Referer header.
func RefererExtension(referer string) string {
	if referer == "" {
		return ""
	}
	u, err := url.Parse(referer)
	if err != nil {
		return ""
	}
	return strings.ToLower(path.Ext(u.Path))
}
