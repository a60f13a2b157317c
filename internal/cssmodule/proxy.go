package cssmodule

import (
	"fmt"
	"strconv"
	"strings"
)

var reservedWords = map[string]bool{
	"await": true, "break": true, "case": true, "catch": true, "class": true,
	"const": true, "continue": true, "debugger": true, "default": true,
	"delete": true, "do": true, "else": true, "enum": true, "export": true,
	"extends": true, "false": true, "finally": true, "for": true,
	"function": true, "if": true, "implements": true, "import": true,
	"in": true, "instanceof": true, "interface": true, "let": true,
	"new": true, "null": true, "package": true, "private": true,
	"protected": true, "public": true, "return": true, "static": true,
	"super": true, "switch": true, "this": true, "throw": true, "true": true,
	"try": true, "typeof": true, "var": true, "void": true, "while": true,
	"with": true, "yield": true,
}

// ProxyModule generates the module served in place of a scoped stylesheet.
// It attaches the stylesheet at stylesheetURL through the runtime module and
// exports the class mapping as its default export. Class names that are valid
// identifiers are also exported by name.
func ProxyModule(runtimeSpecifier, stylesheetURL string, classes []Class) string {
	var b strings.Builder

	fmt.Fprintf(&b, "import { style } from %s;\n", strconv.Quote(runtimeSpecifier))
	fmt.Fprintf(&b, "style(%s);\n", strconv.Quote(stylesheetURL))

	b.WriteString("const classes = {")
	for i, c := range classes {
		if i > 0 {
			b.WriteByte(',')
		}
		fmt.Fprintf(&b, "\n  %s: %s", strconv.Quote(c.Name), strconv.Quote(c.Scoped))
	}
	if len(classes) > 0 {
		b.WriteByte('\n')
	}
	b.WriteString("};\nexport default classes;\n")

	for _, c := range classes {
		if isIdentifier(c.Name) {
			fmt.Fprintf(&b, "export const %s = %s;\n", c.Name, strconv.Quote(c.Scoped))
		}
	}

	return b.String()
}

func isIdentifier(name string) bool {
	if name == "" || reservedWords[name] {
		return false
	}
	for i := 0; i < len(name); i++ {
		c := name[i]
		switch {
		case c == '_' || c == '$' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z'):
		case i > 0 && c >= '0' && c <= '9':
		default:
			return false
		}
	}
	return true
}
