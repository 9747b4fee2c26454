// Package sqlutil contains helpers for working with raw SQL script text.
package sqlutil

import (
	"strings"

	"github.com/stokaro/tabula/core/platform"
)

// Option adjusts how script text is scanned.
type Option func(*scanner)

// WithDialect scans string literals the way dialect reads them. MySQL and
// MariaDB treat a backslash inside a quoted string as an escape. Without this
// option, and for every other dialect, a backslash is a literal character
// except inside PostgreSQL E'...' strings.
func WithDialect(dialect string) Option {
	return func(s *scanner) {
		s.backslashEscapes = platform.IsMySQLLike(platform.NormalizeDialect(dialect))
	}
}

func newScanner(src string, opts []Option) *scanner {
	s := &scanner{src: src}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// StripComments removes "--" line comments and "/* */" block comments from sql.
// Comment markers inside quoted strings, quoted identifiers and PostgreSQL
// dollar-quoted bodies are preserved.
func StripComments(sql string, opts ...Option) string {
	var sb strings.Builder
	sb.Grow(len(sql))

	s := newScanner(sql, opts)
	for !s.done() {
		switch {
		case s.startsWith("--"):
			s.skipLineComment()
			// keep the line break so that statements on adjacent lines stay apart
			if !s.done() {
				sb.WriteByte('\n')
				s.pos++
			}
		case s.startsWith("/*"):
			s.skipBlockComment()
			sb.WriteByte(' ')
		default:
			start := s.pos
			s.advanceToken()
			sb.WriteString(sql[start:s.pos])
		}
	}

	return sb.String()
}

// SplitSQLStatements splits a script into individual statements on top-level
// semicolons. Statements are trimmed and empty statements are dropped, so the
// result of an empty or comment-only script is an empty, non-nil slice.
func SplitSQLStatements(sql string, opts ...Option) []string {
	statements := []string{}

	s := newScanner(sql, opts)
	start := 0
	flush := func(end int) {
		stmt := strings.TrimSpace(sql[start:end])
		if stmt != "" && strings.TrimSpace(StripComments(stmt, opts...)) != "" {
			statements = append(statements, stmt)
		}
	}

	for !s.done() {
		switch {
		case s.src[s.pos] == ';':
			flush(s.pos)
			s.pos++
			start = s.pos
		case s.startsWith("--"):
			s.skipLineComment()
		case s.startsWith("/*"):
			s.skipBlockComment()
		default:
			s.advanceToken()
		}
	}
	flush(len(sql))

	return statements
}

type scanner struct {
	src              string
	pos              int
	backslashEscapes bool
}

func (s *scanner) done() bool {
	return s.pos >= len(s.src)
}

func (s *scanner) startsWith(prefix string) bool {
	return strings.HasPrefix(s.src[s.pos:], prefix)
}

func (s *scanner) skipLineComment() {
	if i := strings.IndexByte(s.src[s.pos:], '\n'); i >= 0 {
		s.pos += i
		return
	}
	s.pos = len(s.src)
}

func (s *scanner) skipBlockComment() {
	if i := strings.Index(s.src[s.pos+2:], "*/"); i >= 0 {
		s.pos += i + 4
		return
	}
	s.pos = len(s.src)
}

// advanceToken consumes one byte, or a whole quoted section when positioned on
// a quote character or a dollar-quote tag.
func (s *scanner) advanceToken() {
	switch c := s.src[s.pos]; c {
	case '\'', '"':
		s.skipQuoted(c, s.backslashEscapes)
	case '`':
		s.skipQuoted(c, false)
	case 'E', 'e':
		if s.startsEscapeString() {
			s.pos++
			s.skipQuoted('\'', true)
			return
		}
		s.pos++
	case '$':
		if tag, ok := s.dollarTag(); ok {
			s.pos += len(tag)
			if i := strings.Index(s.src[s.pos:], tag); i >= 0 {
				s.pos += i + len(tag)
			} else {
				s.pos = len(s.src)
			}
			return
		}
		s.pos++
	default:
		s.pos++
	}
}

// startsEscapeString reports whether the scanner sits on the prefix of an
// E'...' string rather than on the last letter of an identifier.
func (s *scanner) startsEscapeString() bool {
	if s.pos+1 >= len(s.src) || s.src[s.pos+1] != '\'' {
		return false
	}
	return s.pos == 0 || !isIdentByte(s.src[s.pos-1])
}

// skipQuoted consumes a quoted section. A doubled quote character is an
// escaped quote. With escapes set a backslash also escapes the next byte.
func (s *scanner) skipQuoted(quote byte, escapes bool) {
	s.pos++
	for s.pos < len(s.src) {
		c := s.src[s.pos]
		switch {
		case c == '\\' && escapes:
			s.pos += 2
		case c == quote && s.pos+1 < len(s.src) && s.src[s.pos+1] == quote:
			s.pos += 2
		case c == quote:
			s.pos++
			return
		default:
			s.pos++
		}
	}
	s.pos = len(s.src)
}

func isIdentByte(c byte) bool {
	return c == '_' || c == '$' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c >= 0x80
}

// dollarTag recognises $$ and $name$ openers.
func (s *scanner) dollarTag() (string, bool) {
	end := s.pos + 1
	for end < len(s.src) {
		c := s.src[end]
		if c == '$' {
			return s.src[s.pos : end+1], true
		}
		if !(c == '_' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || end > s.pos+1 && c >= '0' && c <= '9') {
			return "", false
		}
		end++
	}
	return "", false
}
