package parser

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokString
	tokQuoted
	tokSemicolon
	tokLBrace
	tokRBrace
	tokPlus
)

func (k tokenKind) String() string {
	switch k {
	case tokEOF:
		return "end of input"
	case tokString:
		return "string"
	case tokQuoted:
		return "quoted string"
	case tokSemicolon:
		return "';'"
	case tokLBrace:
		return "'{'"
	case tokRBrace:
		return "'}'"
	case tokPlus:
		return "'+'"
	}
	return "unknown"
}

type token struct {
	kind tokenKind
	text string
	line int
	col  int
}

type lexer struct {
	src  string
	pos  int
	line int
	col  int
}

type lexError struct {
	line int
	col  int
	msg  string
}

func (e *lexError) Error() string { return fmt.Sprintf("%d:%d: %s", e.line, e.col, e.msg) }

func newLexer(src string) *lexer {
	return &lexer{src: src, line: 1, col: 1}
}

func (l *lexer) peekRune() (rune, int) {
	if l.pos >= len(l.src) {
		return utf8.RuneError, 0
	}
	return utf8.DecodeRuneInString(l.src[l.pos:])
}

func (l *lexer) advance(n int) {
	for i := 0; i < n && l.pos < len(l.src); {
		r, w := utf8.DecodeRuneInString(l.src[l.pos:])
		l.pos += w
		i += w
		if r == '\n' {
			l.line++
			l.col = 1
		} else {
			l.col++
		}
	}
}

func (l *lexer) skipSpaceAndComments() error {
	for l.pos < len(l.src) {
		rest := l.src[l.pos:]
		r, w := l.peekRune()
		switch {
		case unicode.IsSpace(r):
			l.advance(w)
		case strings.HasPrefix(rest, "//"):
			end := strings.IndexByte(rest, '\n')
			if end < 0 {
				end = len(rest)
			}
			l.advance(end)
		case strings.HasPrefix(rest, "/*"):
			end := strings.Index(rest[2:], "*/")
			if end < 0 {
				return &lexError{line: l.line, col: l.col, msg: "unterminated block comment"}
			}
			l.advance(end + 4)
		default:
			return nil
		}
	}
	return nil
}

func (l *lexer) next() (token, error) {
	if err := l.skipSpaceAndComments(); err != nil {
		return token{}, err
	}
	tok := token{line: l.line, col: l.col}
	if l.pos >= len(l.src) {
		tok.kind = tokEOF
		return tok, nil
	}
	r, w := l.peekRune()
	switch r {
	case ';':
		l.advance(w)
		tok.kind = tokSemicolon
		return tok, nil
	case '{':
		l.advance(w)
		tok.kind = tokLBrace
		return tok, nil
	case '}':
		l.advance(w)
		tok.kind = tokRBrace
		return tok, nil
	case '"':
		text, err := l.readDoubleQuoted()
		tok.kind, tok.text = tokQuoted, text
		return tok, err
	case '\'':
		text, err := l.readSingleQuoted()
		tok.kind, tok.text = tokQuoted, text
		return tok, err
	case '+':
		// "+" is only a concatenation operator between quoted strings; an
		// unquoted argument may start with it.
		if next := l.pos + w; next >= len(l.src) || isBreak(rune(l.src[next])) {
			l.advance(w)
			tok.kind = tokPlus
			return tok, nil
		}
	}
	start := l.pos
	for l.pos < len(l.src) {
		r, w := l.peekRune()
		if isBreak(r) || r == ';' || r == '{' || r == '}' {
			break
		}
		rest := l.src[l.pos:]
		if strings.HasPrefix(rest, "//") || strings.HasPrefix(rest, "/*") {
			break
		}
		l.advance(w)
	}
	tok.kind = tokString
	tok.text = l.src[start:l.pos]
	return tok, nil
}

func isBreak(r rune) bool {
	return unicode.IsSpace(r)
}

func (l *lexer) readSingleQuoted() (string, error) {
	line, col := l.line, l.col
	l.advance(1)
	end := strings.IndexByte(l.src[l.pos:], '\'')
	if end < 0 {
		return "", &lexError{line: line, col: col, msg: "unterminated single-quoted string"}
	}
	text := l.src[l.pos : l.pos+end]
	l.advance(end + 1)
	return text, nil
}

func (l *lexer) readDoubleQuoted() (string, error) {
	line, col := l.line, l.col
	startCol := l.col
	l.advance(1)
	var b strings.Builder
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		switch c {
		case '"':
			l.advance(1)
			return trimQuotedIndent(b.String(), startCol), nil
		case '\\':
			if l.pos+1 >= len(l.src) {
				return "", &lexError{line: l.line, col: l.col, msg: "dangling escape"}
			}
			switch l.src[l.pos+1] {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			case '"':
				b.WriteByte('"')
			case '\\':
				b.WriteByte('\\')
			default:
				return "", &lexError{line: l.line, col: l.col, msg: fmt.Sprintf("invalid escape \\%c", l.src[l.pos+1])}
			}
			l.advance(2)
		default:
			_, w := l.peekRune()
			b.WriteString(l.src[l.pos : l.pos+w])
			l.advance(w)
		}
	}
	return "", &lexError{line: line, col: col, msg: "unterminated double-quoted string"}
}

// trimQuotedIndent strips trailing whitespace before each line break and the
// leading indentation of continuation lines up to the opening quote column.
func trimQuotedIndent(s string, quoteCol int) string {
	if !strings.Contains(s, "\n") {
		return s
	}
	lines := strings.Split(s, "\n")
	for i := range lines {
		if i < len(lines)-1 {
			lines[i] = strings.TrimRight(lines[i], " \t")
		}
		if i == 0 {
			continue
		}
		line := lines[i]
		n := 0
		for n < len(line) && n < quoteCol && (line[n] == ' ' || line[n] == '\t') {
			n++
		}
		lines[i] = line[n:]
	}
	return strings.Join(lines, "\n")
}
