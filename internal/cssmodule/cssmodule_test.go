package cssmodule

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHash(t *testing.T) {
	assert.Equal(t, Hash("src/a.module.css"), Hash("src/a.module.css"))
	assert.NotEqual(t, Hash("src/a.module.css"), Hash("src/b.module.css"))
	assert.Len(t, Hash("x"), 8)
	assert.Equal(t, "btn_"+Hash("x"), ScopedName("btn", "x"))
}

func TestTransform(t *testing.T) {
	id := "src/app.module.css"
	h := Hash(id)

	tests := []struct {
		name    string
		in      string
		want    string
		classes []string
	}{
		{
			name:    "simple class",
			in:      ".title { color: red; }",
			want:    ".title_" + h + " { color: red; }",
			classes: []string{"title"},
		},
		{
			name:    "compound selectors",
			in:      ".a:hover, .b .a > p.c-d { margin: 0 }",
			want:    ".a_" + h + ":hover, .b_" + h + " .a_" + h + " > p.c-d_" + h + " { margin: 0 }",
			classes: []string{"a", "b", "c-d"},
		},
		{
			name:    "declarations untouched",
			in:      ".x { width: .5em; background: url(./img.png); content: \".y\" }",
			want:    ".x_" + h + " { width: .5em; background: url(./img.png); content: \".y\" }",
			classes: []string{"x"},
		},
		{
			name:    "global escape",
			in:      ":global(.reset) .local, :global(.theme-dark) { }",
			want:    ".reset .local_" + h + ", .theme-dark { }",
			classes: []string{"local"},
		},
		{
			name:    "attribute selectors",
			in:      "a[href$=\".pdf\"].link { }",
			want:    "a[href$=\".pdf\"].link_" + h + " { }",
			classes: []string{"link"},
		},
		{
			name:    "media queries",
			in:      "@media (max-width: 600px) {\n  .grid { display: block; }\n}",
			want:    "@media (max-width: 600px) {\n  .grid_" + h + " { display: block; }\n}",
			classes: []string{"grid"},
		},
		{
			name:    "keyframes are copied",
			in:      "@keyframes spin { from { opacity: .1 } to { opacity: 1 } }\n.spin { animation: spin 1s }",
			want:    "@keyframes spin { from { opacity: .1 } to { opacity: 1 } }\n.spin_" + h + " { animation: spin 1s }",
			classes: []string{"spin"},
		},
		{
			name:    "statement at-rules and comments",
			in:      "@import url(\"x.css\");\n/* .commented { } */\n.a{}",
			want:    "@import url(\"x.css\");\n/* .commented { } */\n.a_" + h + "{}",
			classes: []string{"a"},
		},
		{
			name:    "pseudo functions",
			in:      "li:not(.done):nth-child(2n+1) { }",
			want:    "li:not(.done_" + h + "):nth-child(2n+1) { }",
			classes: []string{"done"},
		},
		{
			name: "element selectors only",
			in:   "body, html { margin: 0 }",
			want: "body, html { margin: 0 }",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := Transform(tt.in, id)
			require.NoError(t, err)
			assert.Equal(t, tt.want, result.CSS)

			var names []string
			for _, c := range result.Classes {
				names = append(names, c.Name)
				assert.Equal(t, ScopedName(c.Name, id), c.Scoped)
			}
			assert.Equal(t, tt.classes, names)
		})
	}
}

func TestTransformErrors(t *testing.T) {
	for _, in := range []string{
		".a { color: red;",
		"@media screen { .a {} ",
		"} .a {}",
		".a",
	} {
		_, err := Transform(in, "src/broken.module.css")
		assert.Error(t, err, in)
	}
}

func TestResultMap(t *testing.T) {
	result, err := Transform(".a{} .b{}", "x.module.css")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"a": ScopedName("a", "x.module.css"),
		"b": ScopedName("b", "x.module.css"),
	}, result.Map())
}

func TestProxyModule(t *testing.T) {
	classes := []Class{
		{Name: "title", Scoped: "title_1"},
		{Name: "nav-item", Scoped: "nav-item_1"},
		{Name: "default", Scoped: "default_1"},
	}

	code := ProxyModule("jitserve", "/src/app.module.css", classes)

	assert.True(t, strings.HasPrefix(code, "import { style } from \"jitserve\";\nstyle(\"/src/app.module.css\");\n"))
	assert.Contains(t, code, `"title": "title_1"`)
	assert.Contains(t, code, `"nav-item": "nav-item_1"`)
	assert.Contains(t, code, "export default classes;")
	assert.Contains(t, code, `export const title = "title_1";`)
	assert.NotContains(t, code, "export const nav-item")
	assert.NotContains(t, code, "export const default")
}

func TestProxyModuleEmpty(t *testing.T) {
	code := ProxyModule("jitserve", "/a.module.css", nil)
	assert.Contains(t, code, "const classes = {};")
}
