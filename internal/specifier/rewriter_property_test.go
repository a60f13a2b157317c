//go:build property

package specifier

import (
	"fmt"
	"strings"
	"testing"

	"github.com/conneroisu/jitserve/internal/cache"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// TestSpecifierProperties validates the specifier policy over generated names
func TestSpecifierProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.Rng.Seed(1357)
	parameters.MinSuccessfulTests = 200

	properties := gopter.NewProperties(parameters)
	r := New(nil, nil)

	name := gen.Identifier()

	properties.Property("bare specifiers route through the package proxy", prop.ForAll(
		func(pkg string) bool {
			if pkg == RuntimeSpecifier {
				return true
			}
			return r.Specifier(pkg) == NpmPrefix+pkg
		},
		name,
	))

	properties.Property("relative scripts are unchanged", prop.ForAll(
		func(file string) bool {
			spec := "./" + file + ".js"
			return r.Specifier(spec) == spec
		},
		name,
	))

	properties.Property("stylesheets gain the proxy suffix", prop.ForAll(
		func(file string, ext string) bool {
			spec := "../" + file + ext
			return r.Specifier(spec) == cache.ProxyID(spec)
		},
		name,
		gen.OneConstOf(".css", ".module.css", ".scss", ".sass", ".less", ".module.LESS"),
	))

	properties.Property("the policy is idempotent", prop.ForAll(
		func(prefix int, file string, css bool) bool {
			spec := []string{"", "./", "../", "/"}[prefix] + file
			if css {
				spec += ".css"
			}
			once := r.Specifier(spec)
			return r.Specifier(once) == once
		},
		gen.IntRange(0, 3),
		name,
		gen.Bool(),
	))

	properties.Property("rewriting touches only specifiers", prop.ForAll(
		func(pkgs []string) bool {
			var src, want strings.Builder
			for i, pkg := range pkgs {
				fmt.Fprintf(&src, "import v%d from %q;\nconst s%d = %q;\n", i, pkg, i, pkg)
				fmt.Fprintf(&want, "import v%d from %q;\nconst s%d = %q;\n", i, r.Specifier(pkg), i, pkg)
			}
			out, err := r.Rewrite(src.String(), "src/gen.js")
			return err == nil && out == want.String()
		},
		gen.SliceOf(name),
	))

	properties.TestingRun(t)
}
