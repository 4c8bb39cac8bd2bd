// Package parser turns YANG text into a statement tree.
package parser

import (
	"fmt"
	"strings"
)

// Statement is one parsed YANG statement.
type Statement struct {
	Keyword       string       `msgpack:"k"`
	Argument      string       `msgpack:"a,omitempty"`
	HasArgument   bool         `msgpack:"h,omitempty"`
	Substatements []*Statement `msgpack:"s,omitempty"`
	Line          int          `msgpack:"l"`
	Col           int          `msgpack:"c"`
}

// Prefix returns the prefix of an extension keyword, or "" for built-ins.
func (s *Statement) Prefix() string {
	if p, _, ok := strings.Cut(s.Keyword, ":"); ok {
		return p
	}
	return ""
}

// LocalKeyword returns the keyword without its prefix.
func (s *Statement) LocalKeyword() string {
	if _, local, ok := strings.Cut(s.Keyword, ":"); ok {
		return local
	}
	return s.Keyword
}

// Find returns the first direct substatement with the keyword.
func (s *Statement) Find(keyword string) *Statement {
	for _, sub := range s.Substatements {
		if sub.Keyword == keyword {
			return sub
		}
	}
	return nil
}

// FindAll returns all direct substatements with the keyword.
func (s *Statement) FindAll(keyword string) []*Statement {
	var out []*Statement
	for _, sub := range s.Substatements {
		if sub.Keyword == keyword {
			out = append(out, sub)
		}
	}
	return out
}

// ArgOf returns the argument of the first substatement with the keyword.
func (s *Statement) ArgOf(keyword string) string {
	if sub := s.Find(keyword); sub != nil {
		return sub.Argument
	}
	return ""
}

func (s *Statement) String() string {
	if s.HasArgument {
		return fmt.Sprintf("%s %q", s.Keyword, s.Argument)
	}
	return s.Keyword
}

// Parse reads every top-level statement in src.
func Parse(src string) ([]*Statement, error) {
	p := &stmtParser{lex: newLexer(src)}
	if err := p.fill(); err != nil {
		return nil, err
	}
	var out []*Statement
	for p.tok.kind != tokEOF {
		st, err := p.statement()
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, nil
}

type stmtParser struct {
	lex *lexer
	tok token
}

func (p *stmtParser) fill() error {
	tok, err := p.lex.next()
	if err != nil {
		return err
	}
	p.tok = tok
	return nil
}

func (p *stmtParser) errorf(format string, args ...any) error {
	return &lexError{line: p.tok.line, col: p.tok.col, msg: fmt.Sprintf(format, args...)}
}

func (p *stmtParser) statement() (*Statement, error) {
	if p.tok.kind != tokString {
		return nil, p.errorf("expected keyword, found %s", p.tok.kind)
	}
	if !validKeyword(p.tok.text) {
		return nil, p.errorf("invalid keyword %q", p.tok.text)
	}
	st := &Statement{Keyword: p.tok.text, Line: p.tok.line, Col: p.tok.col}
	if err := p.fill(); err != nil {
		return nil, err
	}

	switch p.tok.kind {
	case tokString:
		st.Argument, st.HasArgument = p.tok.text, true
		if err := p.fill(); err != nil {
			return nil, err
		}
	case tokQuoted:
		arg, err := p.quotedArgument()
		if err != nil {
			return nil, err
		}
		st.Argument, st.HasArgument = arg, true
	}

	switch p.tok.kind {
	case tokSemicolon:
		return st, p.fill()
	case tokLBrace:
		if err := p.fill(); err != nil {
			return nil, err
		}
		for p.tok.kind != tokRBrace {
			if p.tok.kind == tokEOF {
				return nil, p.errorf("missing '}' for %s opened at %d:%d", st.Keyword, st.Line, st.Col)
			}
			sub, err := p.statement()
			if err != nil {
				return nil, err
			}
			st.Substatements = append(st.Substatements, sub)
		}
		return st, p.fill()
	default:
		return nil, p.errorf("expected ';' or '{' after %s, found %s", st.Keyword, p.tok.kind)
	}
}

func (p *stmtParser) quotedArgument() (string, error) {
	var b strings.Builder
	b.WriteString(p.tok.text)
	if err := p.fill(); err != nil {
		return "", err
	}
	for p.tok.kind == tokPlus {
		if err := p.fill(); err != nil {
			return "", err
		}
		if p.tok.kind != tokQuoted {
			return "", p.errorf("expected quoted string after '+', found %s", p.tok.kind)
		}
		b.WriteString(p.tok.text)
		if err := p.fill(); err != nil {
			return "", err
		}
	}
	return b.String(), nil
}

func validKeyword(s string) bool {
	prefix, local, ok := strings.Cut(s, ":")
	if ok {
		return validIdentifier(prefix) && validIdentifier(local)
	}
	return validIdentifier(s)
}

func validIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z'):
		case i > 0 && (r == '-' || r == '.' || (r >= '0' && r <= '9')):
		default:
			return false
		}
	}
	return true
}
