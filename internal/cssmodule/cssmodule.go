// Package cssmodule scopes the class names of a stylesheet to its module id
// and generates the proxy module that exports the resulting mapping.
package cssmodule

import (
	"fmt"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// Class maps an authored class name to its scoped name.
type Class struct {
	Name   string `json:"name"`
	Scoped string `json:"scoped"`
}

// Result is a scoped stylesheet and its class mapping in first-seen order.
type Result struct {
	CSS     string
	Classes []Class
}

// Map returns the class mapping keyed by authored name.
func (r Result) Map() map[string]string {
	m := make(map[string]string, len(r.Classes))
	for _, c := range r.Classes {
		m[c.Name] = c.Scoped
	}
	return m
}

// Hash returns the suffix shared by every class scoped to id.
func Hash(id string) string {
	return fmt.Sprintf("%08x", uint32(xxhash.Sum64String(id)))
}

// ScopedName returns the scoped form of class for module id.
func ScopedName(class, id string) string {
	return class + "_" + Hash(id)
}

// at-rules whose blocks contain style rules
var groupingRules = map[string]bool{
	"media":     true,
	"supports":  true,
	"layer":     true,
	"container": true,
	"document":  true,
	"scope":     true,
}

// Transform rewrites every class selector in css to its scoped name. Classes
// wrapped in :global(...) keep their name. Declaration blocks and at-rules
// such as @keyframes and @font-face are copied unchanged.
func Transform(css, id string) (Result, error) {
	t := &transformer{
		src:   css,
		hash:  Hash(id),
		index: make(map[string]int),
	}
	if err := t.rules(false); err != nil {
		return Result{}, fmt.Errorf("%s: %w", id, err)
	}
	return Result{CSS: t.out.String(), Classes: t.classes}, nil
}

type transformer struct {
	src  string
	pos  int
	out  strings.Builder
	hash string

	classes []Class
	index   map[string]int
}

// rules processes a sequence of rules until the end of input or, when nested,
// the closing brace of the enclosing group.
func (t *transformer) rules(nested bool) error {
	for {
		t.copyTrivia()
		if t.pos >= len(t.src) {
			if nested {
				return fmt.Errorf("unexpected end of stylesheet inside block")
			}
			return nil
		}

		switch t.src[t.pos] {
		case '}':
			if !nested {
				return fmt.Errorf("unexpected '}' at offset %d", t.pos)
			}
			t.out.WriteByte('}')
			t.pos++
			return nil
		case '@':
			if err := t.atRule(); err != nil {
				return err
			}
		default:
			if err := t.styleRule(); err != nil {
				return err
			}
		}
	}
}

func (t *transformer) atRule() error {
	start := t.pos
	t.pos++
	for t.pos < len(t.src) && isNameChar(t.src[t.pos]) {
		t.pos++
	}
	name := strings.ToLower(t.src[start+1 : t.pos])

	end, term, err := t.preludeEnd(t.pos)
	if err != nil {
		return err
	}
	t.out.WriteString(t.src[start:end])
	t.pos = end
	if term == ';' || term == 0 {
		if term == ';' {
			t.out.WriteByte(';')
			t.pos++
		}
		return nil
	}

	t.out.WriteByte('{')
	t.pos++
	if groupingRules[name] {
		return t.rules(true)
	}
	return t.copyBlock()
}

func (t *transformer) styleRule() error {
	end, term, err := t.preludeEnd(t.pos)
	if err != nil {
		return err
	}
	if term != '{' {
		return fmt.Errorf("selector without a declaration block at offset %d", t.pos)
	}

	t.out.WriteString(t.selector(t.src[t.pos:end]))
	t.out.WriteByte('{')
	t.pos = end + 1
	return t.copyBlock()
}

// selector rewrites the class names of a selector list.
func (t *transformer) selector(sel string) string {
	var b strings.Builder
	b.Grow(len(sel) + 16)

	for i := 0; i < len(sel); {
		c := sel[i]
		switch {
		case c == '"' || c == '\'':
			end := skipString(sel, i)
			b.WriteString(sel[i:end])
			i = end
		case c == '[':
			end := i + 1
			for end < len(sel) && sel[end] != ']' {
				if sel[end] == '"' || sel[end] == '\'' {
					end = skipString(sel, end)
					continue
				}
				end++
			}
			if end < len(sel) {
				end++
			}
			b.WriteString(sel[i:end])
			i = end
		case strings.HasPrefix(sel[i:], ":global("):
			open := i + len(":global(")
			closeAt := matchParen(sel, open)
			b.WriteString(sel[open:closeAt])
			i = closeAt
			if i < len(sel) {
				i++
			}
		case c == '\\':
			end := i + 2
			if end > len(sel) {
				end = len(sel)
			}
			b.WriteString(sel[i:end])
			i = end
		case c == '.' && i+1 < len(sel) && isClassStart(sel[i+1]):
			end := i + 1
			for end < len(sel) {
				if sel[end] == '\\' && end+1 < len(sel) {
					end += 2
					continue
				}
				if !isNameChar(sel[end]) {
					break
				}
				end++
			}
			b.WriteByte('.')
			b.WriteString(t.scope(sel[i+1 : end]))
			i = end
		default:
			b.WriteByte(c)
			i++
		}
	}
	return b.String()
}

func (t *transformer) scope(name string) string {
	if idx, ok := t.index[name]; ok {
		return t.classes[idx].Scoped
	}
	scoped := name + "_" + t.hash
	t.index[name] = len(t.classes)
	t.classes = append(t.classes, Class{Name: name, Scoped: scoped})
	return scoped
}

// preludeEnd finds the '{' or ';' ending the prelude starting at p. It
// returns 0 as the terminator at the end of input.
func (t *transformer) preludeEnd(p int) (int, byte, error) {
	depth := 0
	for i := p; i < len(t.src); i++ {
		switch c := t.src[i]; c {
		case '"', '\'':
			i = skipString(t.src, i) - 1
		case '(':
			depth++
		case ')':
			depth--
		case '/':
			if i+1 < len(t.src) && t.src[i+1] == '*' {
				end := strings.Index(t.src[i+2:], "*/")
				if end < 0 {
					return 0, 0, fmt.Errorf("unterminated comment at offset %d", i)
				}
				i += end + 3
			}
		case '{', ';':
			if depth == 0 {
				return i, c, nil
			}
		case '}':
			if depth == 0 {
				return 0, 0, fmt.Errorf("unexpected '}' at offset %d", i)
			}
		}
	}
	return len(t.src), 0, nil
}

// copyBlock copies a block body verbatim, including the closing brace.
func (t *transformer) copyBlock() error {
	depth := 1
	start := t.pos
	for i := t.pos; i < len(t.src); i++ {
		switch t.src[i] {
		case '"', '\'':
			i = skipString(t.src, i) - 1
		case '/':
			if i+1 < len(t.src) && t.src[i+1] == '*' {
				end := strings.Index(t.src[i+2:], "*/")
				if end < 0 {
					return fmt.Errorf("unterminated comment at offset %d", i)
				}
				i += end + 3
			}
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				t.out.WriteString(t.src[start : i+1])
				t.pos = i + 1
				return nil
			}
		}
	}
	return fmt.Errorf("unterminated block starting at offset %d", start)
}

// copyTrivia copies whitespace and comments.
func (t *transformer) copyTrivia() {
	for t.pos < len(t.src) {
		c := t.src[t.pos]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f':
			t.out.WriteByte(c)
			t.pos++
		case c == '/' && t.pos+1 < len(t.src) && t.src[t.pos+1] == '*':
			end := strings.Index(t.src[t.pos+2:], "*/")
			if end < 0 {
				t.out.WriteString(t.src[t.pos:])
				t.pos = len(t.src)
				return
			}
			stop := t.pos + 2 + end + 2
			t.out.WriteString(t.src[t.pos:stop])
			t.pos = stop
		default:
			return
		}
	}
}

func skipString(s string, p int) int {
	quote := s[p]
	for i := p + 1; i < len(s); i++ {
		switch s[i] {
		case '\\':
			i++
		case quote:
			return i + 1
		}
	}
	return len(s)
}

func matchParen(s string, p int) int {
	depth := 1
	for i := p; i < len(s); i++ {
		switch s[i] {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return len(s)
}

func isClassStart(c byte) bool {
	return c == '_' || c == '-' || c == '\\' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c >= 0x80
}

func isNameChar(c byte) bool {
	return isClassStart(c) || (c >= '0' && c <= '9')
}
