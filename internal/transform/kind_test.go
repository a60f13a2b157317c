package transform

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/conneroisu/jitserve/internal/cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelect(t *testing.T) {
	tests := []struct {
		path string
		want Kind
	}{
		{"/_jitserve.js", KindRuntimeClient},
		{"/src/app.module.css.js", KindCSSModuleProxy},
		{"/src/theme.css.js", KindCSSModuleProxy},
		{"/src/theme.scss.js", KindCSSModuleProxy},
		{"/src/theme.less.js", KindCSSModuleProxy},
		{"/src/A.MODULE.SCSS.js", KindCSSModuleProxy},
		{"/src/A.MODULE.SCSS", KindStylesheet},
		{"/src/app.js", KindModule},
		{"/src/app.mjs", KindModule},
		{"/src/app.cjs", KindModule},
		{"/src/App.jsx", KindModule},
		{"/src/app.ts", KindModule},
		{"/src/app.mts", KindModule},
		{"/src/app.cts", KindModule},
		{"/src/App.tsx", KindModule},
		{"/src/APP.TSX", KindModule},
		{"/src/app.module.css", KindStylesheet},
		{"/src/app.css", KindStylesheet},
		{"/src/app.sass", KindStylesheet},
		{"/index.html", KindPassthrough},
		{"/logo.svg", KindPassthrough},
		{"/src/app", KindPassthrough},
		{"/", KindPassthrough},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, Select(tt.path))
		})
	}
}

func TestKindString(t *testing.T) {
	names := map[string]bool{}
	for _, k := range Kinds {
		names[k.String()] = true
	}
	assert.Len(t, names, len(Kinds))
	assert.Equal(t, "cssModuleProxy", KindCSSModuleProxy.String())
	assert.Equal(t, "unknown", Kind(42).String())
}

func TestContentType(t *testing.T) {
	assert.Equal(t, ContentTypeJavaScript, ContentType("/a.ts"))
	assert.Equal(t, ContentTypeJavaScript, ContentType("/a.css.js"))
	assert.Equal(t, ContentTypeCSS, ContentType("/a.module.css"))
	assert.Equal(t, "", ContentType("/a.png"))
}

func TestResolveTyped(t *testing.T) {
	root := t.TempDir()
	both := filepath.Join(root, "both")
	tsOnly := filepath.Join(root, "tsonly")
	require.NoError(t, os.WriteFile(both+".tsx", []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(both+".ts", []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(tsOnly+".ts", []byte("x"), 0o644))

	t.Run("tsx wins on disk", func(t *testing.T) {
		file, id := ResolveTyped(nil, both, "both", ".tsx")
		assert.Equal(t, both+".tsx", file)
		assert.Equal(t, "both.tsx", id)
	})

	t.Run("ts only", func(t *testing.T) {
		file, id := ResolveTyped(nil, tsOnly, "tsonly", ".ts")
		assert.Equal(t, tsOnly+".ts", file)
		assert.Equal(t, "tsonly.ts", id)
	})

	t.Run("cache before disk", func(t *testing.T) {
		store := cache.NewStore("")
		store.Put("both.ts", []byte("cached"))
		file, id := ResolveTyped(store, both, "both", ".mts")
		assert.Equal(t, both+".ts", file)
		assert.Equal(t, "both.ts", id)
	})

	t.Run("untyped referer", func(t *testing.T) {
		file, id := ResolveTyped(nil, both, "both", ".html")
		assert.Equal(t, both, file)
		assert.Equal(t, "both", id)
	})

	t.Run("existing extension", func(t *testing.T) {
		file, id := ResolveTyped(nil, both+".js", "both.js", ".tsx")
		assert.Equal(t, both+".js", file)
		assert.Equal(t, "both.js", id)
	})

	t.Run("no match", func(t *testing.T) {
		missing := filepath.Join(root, "missing")
		file, id := ResolveTyped(nil, missing, "missing", ".jsx")
		assert.Equal(t, missing, file)
		assert.Equal(t, "missing", id)
	})
}

func TestRefererExtension(t *testing.T) {
	assert.Equal(t, ".tsx", RefererExtension("http://localhost:8080/src/main.tsx?v=1"))
	assert.Equal(t, ".html", RefererExtension("http://localhost:8080/index.html"))
	assert.Equal(t, "", RefererExtension("http://localhost:8080/"))
	assert.Equal(t, "", RefererExtension(""))
	assert.Equal(t, ".ts", RefererExtension("/src/app.TS"))
}
