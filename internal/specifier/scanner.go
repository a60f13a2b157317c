package specifier

import (
	"fmt"
	"strings"
)

// edit replaces src[start:end] with text.
type edit struct {
	start, end int
	text       string
}

// scanner walks JavaScript source collecting specifier edits. It understands
// enough of the lexical grammar to skip comments, strings, template literals
// and regular expression literals.
type scanner struct {
	src   string
	pos   int
	edits []edit

	// regexOK reports whether a '/' at the current position starts a regular
	// expression rather than a division.
	regexOK bool

	specifier  func(spec string) string
	importMeta func(prop string) (string, bool)
}

// keywords after which an expression, and so a regex literal, may follow
var exprKeywords = map[string]bool{
	"return": true, "typeof": true, "instanceof": true, "in": true, "of": true,
	"new": true, "delete": true, "void": true, "throw": true, "case": true,
	"do": true, "else": true, "yield": true, "await": true,
}

func (s *scanner) run() (string, error) {
	s.regexOK = true
	if err := s.scan(false); err != nil {
		return "", err
	}
	if len(s.edits) == 0 {
		return s.src, nil
	}

	var b strings.Builder
	b.Grow(len(s.src))
	last := 0
	for _, e := range s.edits {
		b.WriteString(s.src[last:e.start])
		b.WriteString(e.text)
		last = e.end
	}
	b.WriteString(s.src[last:])
	return b.String(), nil
}

// scan consumes code until the end of input or, inside a template
// substitution, the closing brace.
func (s *scanner) scan(inTemplate bool) error {
	depth := 0
	for s.pos < len(s.src) {
		c := s.src[s.pos]
		switch {
		case c == '/' && s.peek(1) == '/':
			s.pos = s.lineEnd(s.pos)
		case c == '/' && s.peek(1) == '*':
			end := strings.Index(s.src[s.pos+2:], "*/")
			if end < 0 {
				return s.errorf("unterminated comment")
			}
			s.pos += end + 4
		case c == '\'' || c == '"':
			end, err := s.stringEnd(s.pos)
			if err != nil {
				return err
			}
			s.pos = end
			s.regexOK = false
		case c == '`':
			if err := s.template(); err != nil {
				return err
			}
			s.regexOK = false
		case c == '/':
			if s.regexOK && s.regex() {
				s.regexOK = false
				continue
			}
			s.pos++
			s.regexOK = true
		case c == '{':
			depth++
			s.pos++
			s.regexOK = true
		case c == '}':
			s.pos++
			if inTemplate && depth == 0 {
				return nil
			}
			depth--
			s.regexOK = true
		case c == ')' || c == ']':
			s.pos++
			s.regexOK = false
		case isIdentStart(c):
			start := s.pos
			word := s.ident(s.pos)
			s.pos += len(word)
			s.regexOK = exprKeywords[word]
			if (word == "import" || word == "export") && !s.isMemberAccess(start) {
				var err error
				if word == "import" {
					err = s.importStatement(start)
				} else {
					err = s.exportStatement()
				}
				if err != nil {
					return err
				}
			}
		case isDigit(c):
			for s.pos < len(s.src) && (isIdentPart(s.src[s.pos]) || s.src[s.pos] == '.') {
				s.pos++
			}
			s.regexOK = false
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			s.pos++
		default:
			s.pos++
			s.regexOK = true
		}
	}

	if inTemplate {
		return s.errorf("unterminated template literal")
	}
	return nil
}

// importStatement handles the forms that follow an import keyword: dynamic
// import calls, import.meta properties, side-effect imports and import
// clauses ending in a from-clause.
func (s *scanner) importStatement(start int) error {
	p := s.skipTrivia(s.pos)
	if p >= len(s.src) {
		return nil
	}

	switch c := s.src[p]; {
	case c == '(':
		q := s.skipTrivia(p + 1)
		if q < len(s.src) && isQuote(s.src[q]) {
			end, err := s.rewriteString(q)
			if err != nil {
				return err
			}
			s.pos = end
		}
		return nil
	case c == '.':
		return s.importMetaProperty(start, p)
	case isQuote(c):
		end, err := s.rewriteString(p)
		if err != nil {
			return err
		}
		s.pos = end
		s.regexOK = false
		return nil
	}

	// import a, { b as c } from "x" / import * as ns from "x" / import type T from "x"
	q := p
	for q < len(s.src) {
		q = s.skipTrivia(q)
		if q >= len(s.src) {
			return nil
		}
		c := s.src[q]
		switch {
		case isIdentStart(c):
			word := s.ident(q)
			q += len(word)
			if word == "from" {
				return s.fromClause(q)
			}
		case c == '{':
			end, err := s.braceEnd(q)
			if err != nil {
				return err
			}
			q = end
		case c == ',' || c == '*':
			q++
		default:
			return nil
		}
	}
	return nil
}

// exportStatement rewrites re-exports: export * from, export * as ns from and
// export { a } from.
func (s *scanner) exportStatement() error {
	p := s.skipTrivia(s.pos)
	if p < len(s.src) && isIdentStart(s.src[p]) && s.ident(p) == "type" {
		p = s.skipTrivia(p + len("type"))
	}
	if p >= len(s.src) {
		return nil
	}

	switch s.src[p] {
	case '*':
		q := s.skipTrivia(p + 1)
		if q < len(s.src) && isIdentStart(s.src[q]) && s.ident(q) == "as" {
			q = s.skipTrivia(q + len("as"))
			if q >= len(s.src) {
				return nil
			}
			if isQuote(s.src[q]) {
				end, err := s.stringEnd(q)
				if err != nil {
					return err
				}
				q = end
			} else {
				q += len(s.ident(q))
			}
			q = s.skipTrivia(q)
		}
		if q < len(s.src) && isIdentStart(s.src[q]) && s.ident(q) == "from" {
			return s.fromClause(q + len("from"))
		}
	case '{':
		end, err := s.braceEnd(p)
		if err != nil {
			return err
		}
		q := s.skipTrivia(end)
		if q < len(s.src) && isIdentStart(s.src[q]) && s.ident(q) == "from" {
			return s.fromClause(q + len("from"))
		}
	}
	return nil
}

// fromClause rewrites the string literal following a from keyword.
func (s *scanner) fromClause(p int) error {
	q := s.skipTrivia(p)
	if q >= len(s.src) || !isQuote(s.src[q]) {
		return nil
	}
	end, err := s.rewriteString(q)
	if err != nil {
		return err
	}
	s.pos = end
	s.regexOK = false
	return nil
}

// importMetaProperty replaces import.meta.<prop> with the hook's value.
func (s *scanner) importMetaProperty(start, dot int) error {
	q := s.skipTrivia(dot + 1)
	if q >= len(s.src) || !isIdentStart(s.src[q]) || s.ident(q) != "meta" {
		return nil
	}
	q = s.skipTrivia(q + len("meta"))
	if q >= len(s.src) || s.src[q] != '.' {
		return nil
	}
	q = s.skipTrivia(q + 1)
	if q >= len(s.src) || !isIdentStart(s.src[q]) {
		return nil
	}
	prop := s.ident(q)
	end := q + len(prop)

	if s.importMeta == nil {
		return nil
	}
	value, ok := s.importMeta(prop)
	if !ok {
		return nil
	}
	s.edits = append(s.edits, edit{start: start, end: end, text: value})
	s.pos = end
	s.regexOK = false
	return nil
}

// rewriteString applies the specifier policy to the string literal at p and
// returns the offset just past it.
func (s *scanner) rewriteString(p int) (int, error) {
	end, err := s.stringEnd(p)
	if err != nil {
		return 0, err
	}
	raw := s.src[p+1 : end-1]
	if s.specifier != nil && !strings.ContainsRune(raw, '\\') {
		if rewritten := s.specifier(raw); rewritten != raw {
			s.edits = append(s.edits, edit{start: p + 1, end: end - 1, text: rewritten})
		}
	}
	return end, nil
}

// stringEnd returns the offset just past the string literal starting at p.
func (s *scanner) stringEnd(p int) (int, error) {
	quote := s.src[p]
	for i := p + 1; i < len(s.src); i++ {
		switch s.src[i] {
		case '\\':
			i++
		case quote:
			return i + 1, nil
		case '\n':
			return 0, s.errorAt(p, "unterminated string literal")
		}
	}
	return 0, s.errorAt(p, "unterminated string literal")
}

func (s *scanner) template() error {
	start := s.pos
	s.pos++
	for s.pos < len(s.src) {
		switch s.src[s.pos] {
		case '\\':
			s.pos += 2
		case '`':
			s.pos++
			return nil
		case '$':
			if s.peek(1) == '{' {
				s.pos += 2
				s.regexOK = true
				if err := s.scan(true); err != nil {
					return err
				}
				continue
			}
			s.pos++
		default:
			s.pos++
		}
	}
	return s.errorAt(start, "unterminated template literal")
}

// regex skips a regular expression literal. A literal never spans lines; on
// a newline the slash is treated as division instead.
func (s *scanner) regex() bool {
	start := s.pos
	inClass := false
	for i := s.pos + 1; i < len(s.src); i++ {
		switch c := s.src[i]; {
		case c == '\\':
			i++
		case c == '\n' || c == '\r':
			s.pos = start
			return false
		case c == '[':
			inClass = true
		case c == ']':
			inClass = false
		case c == '/' && !inClass:
			i++
			for i < len(s.src) && isIdentPart(s.src[i]) {
				i++
			}
			s.pos = i
			return true
		}
	}
	return false
}

// braceEnd returns the offset just past the brace group opened at p.
func (s *scanner) braceEnd(p int) (int, error) {
	for i := p + 1; i < len(s.src); i++ {
		switch c := s.src[i]; {
		case c == '}':
			return i + 1, nil
		case isQuote(c):
			end, err := s.stringEnd(i)
			if err != nil {
				return 0, err
			}
			i = end - 1
		case c == '/' && (s.peekAt(i+1) == '/' || s.peekAt(i+1) == '*'):
			i = s.skipTrivia(i) - 1
		}
	}
	return 0, s.errorAt(p, "unterminated brace")
}

// skipTrivia returns the first offset at or after p that is not whitespace or
// a comment.
func (s *scanner) skipTrivia(p int) int {
	for p < len(s.src) {
		switch c := s.src[p]; {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			p++
		case c == '/' && s.peekAt(p+1) == '/':
			p = s.lineEnd(p)
		case c == '/' && s.peekAt(p+1) == '*':
			end := strings.Index(s.src[p+2:], "*/")
			if end < 0 {
				return len(s.src)
			}
			p += end + 4
		default:
			return p
		}
	}
	return p
}

// isMemberAccess reports whether the word at start follows a property dot.
func (s *scanner) isMemberAccess(start int) bool {
	i := start - 1
	for i >= 0 && (s.src[i] == ' ' || s.src[i] == '\t' || s.src[i] == '\n' || s.src[i] == '\r') {
		i--
	}
	if i < 0 || s.src[i] != '.' {
		return false
	}
	// spread: ...import is not a member access
	return i < 2 || s.src[i-1] != '.' || s.src[i-2] != '.'
}

func (s *scanner) ident(p int) string {
	end := p
	for end < len(s.src) && isIdentPart(s.src[end]) {
		end++
	}
	return s.src[p:end]
}

func (s *scanner) lineEnd(p int) int {
	if i := strings.IndexByte(s.src[p:], '\n'); i >= 0 {
		return p + i
	}
	return len(s.src)
}

func (s *scanner) peek(n int) byte {
	return s.peekAt(s.pos + n)
}

func (s *scanner) peekAt(i int) byte {
	if i < len(s.src) {
		return s.src[i]
	}
	return 0
}

func (s *scanner) errorf(msg string) error {
	return s.errorAt(s.pos, msg)
}

func (s *scanner) errorAt(p int, msg string) error {
	line, col := 1, 1
	for i := 0; i < p && i < len(s.src); i++ {
		if s.src[i] == '\n' {
			line++
			col = 1
		} else {
			col++
		}
	}
	return &syntaxError{msg: msg, line: line, column: col}
}

type syntaxError struct {
	msg          string
	line, column int
}

func (e *syntaxError) Error() string {
	return fmt.Sprintf("%s at %d:%d", e.msg, e.line, e.column)
}

func isQuote(c byte) bool {
	return c == '\'' || c == '"'
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func isIdentStart(c byte) bool {
	return c == '_' || c == '$' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c >= 0x80
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || isDigit(c)
}
