package cache

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestModuleID(t *testing.T) {
	root := filepath.FromSlash("/proj")
	tests := []struct {
		file string
		want string
	}{
		{filepath.FromSlash("/proj/src/app.tsx"), "src/app.tsx"},
		{filepath.FromSlash("/proj/index.js"), "index.js"},
		{filepath.FromSlash("/proj/src/styles/a.module.css"), "src/styles/a.module.css"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, ModuleID(root, tt.file))
		})
	}

	assert.Equal(t, "/src/app.tsx", WebPath("src/app.tsx"))
	assert.Equal(t, "a.module.css.js", ProxyID("a.module.css"))
}

func TestStylesheetNames(t *testing.T) {
	tests := []struct {
		name       string
		stylesheet bool
		scoped     bool
	}{
		{"x/a.module.css", true, true},
		{"x/a.module.scss", true, true},
		{"x/a.module.sass", true, true},
		{"x/a.module.less", true, true},
		{"x/A.MODULE.CSS", true, true},
		{"/src/a.module.css", true, true},
		{"x/a.css", true, false},
		{"x/a.SCSS", true, false},
		{"x/module.css", true, false},
		{"x/a.module.css.js", false, false},
		{"x/a.ts", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.stylesheet, IsStylesheet(tt.name))
			assert.Equal(t, tt.scoped, IsScopedStylesheet(tt.name))
		})
	}
}

func TestStoreGetPut(t *testing.T) {
	store := NewStore("")

	_, ok := store.Get("src/app.ts")
	assert.False(t, ok)

	store.Put("src/app.ts", []byte("export {};"))
	content, ok := store.Get("src/app.ts")
	require.True(t, ok)
	assert.Equal(t, "export {};", string(content))
	assert.True(t, store.Has("src/app.ts"))
	assert.Equal(t, 1, store.Len())

	stats := store.Stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, int64(1), stats.Puts)
}

func TestStoreInvalidateCascade(t *testing.T) {
	store := NewStore("")
	store.Put("src/a.module.css", []byte(".a_x{}"))
	store.Put("src/a.module.css.js", []byte("export default {}"))
	store.Put("src/b.css", []byte(".b{}"))
	store.Put("src/b.css.js", []byte("export default {}"))

	store.Invalidate("src/a.module.css")
	assert.False(t, store.Has("src/a.module.css"))
	assert.False(t, store.Has("src/a.module.css.js"), "proxy module must be dropped with its stylesheet")

	store.Invalidate("src/b.css")
	assert.False(t, store.Has("src/b.css"))
	assert.True(t, store.Has("src/b.css.js"), "plain stylesheets have no derived id")

	assert.Equal(t, int64(3), store.Stats().Invalidations)
}

func TestStoreInvalidateCascadeAllScopedStylesheets(t *testing.T) {
	for _, id := range []string{"src/a.module.scss", "src/a.module.sass", "src/a.module.less", "src/A.MODULE.CSS"} {
		t.Run(id, func(t *testing.T) {
			store := NewStore("")
			store.Put(id, []byte(".a_x{}"))
			store.Put(ProxyID(id), []byte("export default { a: \"a_x\" }"))
			proxyVersion := store.Version(ProxyID(id))

			store.Invalidate(id)
			assert.False(t, store.Has(id))
			assert.False(t, store.Has(ProxyID(id)), "proxy module must be dropped with its stylesheet")
			assert.False(t, store.PutIfCurrent(ProxyID(id), proxyVersion, []byte("stale")))
		})
	}
}

func TestStorePutIfCurrent(t *testing.T) {
	store := NewStore("")

	version := store.Version("src/app.ts")
	store.Invalidate("src/app.ts")

	assert.False(t, store.PutIfCurrent("src/app.ts", version, []byte("stale")))
	assert.False(t, store.Has("src/app.ts"))

	version = store.Version("src/app.ts")
	assert.True(t, store.PutIfCurrent("src/app.ts", version, []byte("fresh")))
	content, ok := store.Get("src/app.ts")
	require.True(t, ok)
	assert.Equal(t, "fresh", string(content))
}

func TestStoreClear(t *testing.T) {
	store := NewStore("")
	store.Put("a.js", []byte("a"))
	version := store.Version("a.js")

	store.Clear()
	assert.Equal(t, 0, store.Len())
	assert.False(t, store.PutIfCurrent("a.js", version, []byte("a")))
}

func TestStoreMirror(t *testing.T) {
	out := filepath.Join(t.TempDir(), "out")
	store := NewStore(out)

	store.Put("src/nested/app.ts", []byte("export const a = 1;"))
	store.Wait()

	data, err := os.ReadFile(filepath.Join(out, "src", "nested", "app.ts"))
	require.NoError(t, err)
	assert.Equal(t, "export const a = 1;", string(data))
	assert.True(t, store.Mirrored("src/nested/app.ts"))
}

func TestStoreMirrorFailureDoesNotBlockMemory(t *testing.T) {
	dir := t.TempDir()
	// A regular file where the output directory should be makes MkdirAll fail.
	blocker := filepath.Join(dir, "out")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

	var (
		mu     sync.Mutex
		failed []string
	)
	store := NewStore(blocker, WithMirrorErrorHandler(func(id string, err error) {
		mu.Lock()
		defer mu.Unlock()
		failed = append(failed, id)
	}))

	store.Put("src/app.ts", []byte("code"))
	content, ok := store.Get("src/app.ts")
	require.True(t, ok)
	assert.Equal(t, "code", string(content))

	store.Wait()
	mu.Lock()
	assert.Equal(t, []string{"src/app.ts"}, failed)
	mu.Unlock()
	assert.False(t, store.Mirrored("src/app.ts"))
	assert.Equal(t, int64(1), store.Stats().MirrorErrors)
}

func TestStoreConcurrentAccess(t *testing.T) {
	store := NewStore(t.TempDir())
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("m/%d.js", i%5)
			store.Put(id, []byte(id))
			store.Get(id)
			if i%3 == 0 {
				store.Invalidate(id)
			}
		}(i)
	}
	wg.Wait()
	store.Wait()

	for i := 0; i < 5; i++ {
		id := fmt.Sprintf("m/%d.js", i)
		if content, ok := store.Get(id); ok {
			assert.Equal(t, id, string(content))
		}
	}
}
