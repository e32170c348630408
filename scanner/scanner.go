// Package scanner provides comment- and string-boundary-aware scanning for
// IDL source text. It encapsulates the tracking of double-quoted string
// literals, // line comments and /* */ block comments, so the parser never
// re-implements that state machine.
package scanner

import "strings"

// CodeScanner iterates byte-by-byte over source text, tracking string
// literal and comment boundaries. Callers check InComment()/InString()
// instead of maintaining their own flags.
type CodeScanner struct {
	src       string
	pos       int
	line      int
	inStr     bool
	inLine    bool // inside a // comment
	inBlock   bool // inside a /* */ comment
	escaped   bool
	closedStr bool // the byte just returned closed a string
	closedCmt bool // the byte just returned closed a block comment
	blockOpen int  // position of the '/' that opened the block comment
}

// New creates a CodeScanner for the given source text.
// Call Next() to advance to the first byte.
func New(src string) *CodeScanner {
	return &CodeScanner{src: src, pos: -1, line: 1}
}

// Next advances to the next byte, updating string/comment state.
// Returns the byte and true, or (0, false) at end of input.
func (s *CodeScanner) Next() (byte, bool) {
	s.closedStr = false
	s.closedCmt = false
	s.pos++
	if s.pos >= len(s.src) {
		return 0, false
	}
	ch := s.src[s.pos]
	if ch == '\n' {
		s.line++
		s.inLine = false
		return ch, true
	}

	if s.inLine {
		return ch, true
	}
	if s.inBlock {
		// The closing '*' must come after the opening "/*", so "/*/" stays open.
		if ch == '/' && s.pos >= s.blockOpen+3 && s.src[s.pos-1] == '*' {
			s.inBlock = false
			s.closedCmt = true
		}
		return ch, true
	}
	if s.inStr {
		if s.escaped {
			s.escaped = false
		} else if ch == '\\' {
			s.escaped = true
		} else if ch == '"' {
			s.inStr = false
			s.closedStr = true
		}
		return ch, true
	}

	switch ch {
	case '"':
		s.inStr = true
	case '/':
		if next, ok := s.Peek(); ok {
			if next == '/' {
				s.inLine = true
			} else if next == '*' {
				s.inBlock = true
				s.blockOpen = s.pos
			}
		}
	}
	return ch, true
}

// InString reports whether the current position is inside a string literal,
// including both delimiters.
func (s *CodeScanner) InString() bool { return s.inStr || s.closedStr }

// InComment reports whether the current position is inside a // or /* */
// comment, including the opening slash.
func (s *CodeScanner) InComment() bool { return s.inLine || s.inBlock || s.closedCmt }

// InCode reports whether the current position is outside strings and comments.
func (s *CodeScanner) InCode() bool { return !s.InString() && !s.InComment() }

// Pos returns the current byte offset (the position of the last byte
// returned by Next). Returns -1 before the first call to Next.
func (s *CodeScanner) Pos() int { return s.pos }

// Line returns the current 1-based line number.
func (s *CodeScanner) Line() int { return s.line }

// Peek returns the next byte without advancing, or (0, false) at end.
func (s *CodeScanner) Peek() (byte, bool) {
	if s.pos+1 >= len(s.src) {
		return 0, false
	}
	return s.src[s.pos+1], true
}

// LookingAt checks if src[pos:] starts with the given prefix.
func (s *CodeScanner) LookingAt(prefix string) bool {
	if s.pos < 0 {
		return strings.HasPrefix(s.src, prefix)
	}
	return strings.HasPrefix(s.src[s.pos:], prefix)
}

// StripComments returns src with // and /* */ comments replaced by spaces
// (newlines preserved so line numbers survive). String literal contents
// are left untouched.
func StripComments(src string) string {
	out := []byte(src)
	sc := New(src)
	for _, ok := sc.Next(); ok; _, ok = sc.Next() {
		if sc.InComment() && out[sc.Pos()] != '\n' {
			out[sc.Pos()] = ' '
		}
	}
	return string(out)
}
