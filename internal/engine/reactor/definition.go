package reactor

import (
	"context"
	"fmt"
	"strings"
)

var builtinKeywords = map[string]bool{
	"action": true, "anydata": true, "anyxml": true, "argument": true, "augment": true,
	"base": true, "belongs-to": true, "bit": true, "case": true, "choice": true,
	"config": true, "contact": true, "container": true, "default": true, "description": true,
	"deviate": true, "deviation": true, "enum": true, "error-app-tag": true, "error-message": true,
	"extension": true, "feature": true, "fraction-digits": true, "grouping": true, "identity": true,
	"if-feature": true, "import": true, "include": true, "input": true, "key": true,
	"leaf": true, "leaf-list": true, "length": true, "list": true, "mandatory": true,
	"max-elements": true, "min-elements": true, "modifier": true, "module": true, "must": true,
	"namespace": true, "notification": true, "ordered-by": true, "organization": true, "output": true,
	"path": true, "pattern": true, "position": true, "prefix": true, "presence": true,
	"range": true, "reference": true, "refine": true, "require-instance": true, "revision": true,
	"revision-date": true, "rpc": true, "status": true, "submodule": true, "type": true,
	"typedef": true, "unique": true, "units": true, "uses": true, "value": true,
	"when": true, "yang-version": true, "yin-element": true,
}

var dataKeywords = map[string]bool{
	"container": true, "list": true, "leaf": true, "leaf-list": true, "choice": true,
	"case": true, "anydata": true, "anyxml": true, "rpc": true, "action": true,
	"notification": true, "input": true, "output": true,
}

func (r *reactor) defineStatements(ctx context.Context) error {
	r.indexDefinitions()

	var mods []*modifier
	for _, u := range r.units {
		var visit func(i int, inExtension bool) error
		visit = func(i int, inExtension bool) error {
			c := r.at(i)
			switch {
			case c.isExtensionUsage():
				p := c.keyword[:strings.IndexByte(c.keyword, ':')]
				target, ok := c.unit.prefixes[p]
				if !ok {
					return r.sourceError(i, "unknown prefix %q in %s", p, c.keyword)
				}
				mods = append(mods, r.extensionModifier(i, target))
				inExtension = true
			case inExtension:
			case !builtinKeywords[c.keyword]:
				return r.sourceError(i, "unknown statement %q", c.keyword)
			case c.keyword == "if-feature":
				expr, err := parseIfFeature(c.arg, c.unit)
				if err != nil {
					return r.sourceError(i, "invalid if-feature %q: %v", c.arg, err)
				}
				c.expr = expr
			}
			for _, ch := range c.children {
				if err := visit(ch, inExtension); err != nil {
					return err
				}
			}
			return nil
		}
		if err := visit(u.root, false); err != nil {
			return err
		}
	}
	return r.fixpoint(ctx, PhaseStatementDefinition, mods)
}

func (r *reactor) extensionModifier(i int, target *unit) *modifier {
	return &modifier{stmt: i, apply: func() (string, error) {
		c := r.at(i)
		local := c.keyword[strings.IndexByte(c.keyword, ':')+1:]
		def, ok := r.extensions[target][local]
		if !ok {
			return fmt.Sprintf("extension %s not defined in %s", local, target.name()), nil
		}
		c.extension = def
		return "", nil
	}}
}

// indexDefinitions records the top-level extensions, features and groupings
// of every module, submodules included.
func (r *reactor) indexDefinitions() {
	for _, u := range r.units {
		m := u.module
		for _, idx := range []struct {
			keyword string
			into    map[*unit]map[string]int
		}{
			{"extension", r.extensions},
			{"feature", r.features},
			{"grouping", r.groupings},
		} {
			for _, ch := range r.childrenWith(u.root, idx.keyword) {
				if idx.into[m] == nil {
					idx.into[m] = make(map[string]int)
				}
				if _, dup := idx.into[m][r.at(ch).arg]; !dup {
					idx.into[m][r.at(ch).arg] = ch
				}
			}
		}
	}
}

// exprNode is a parsed if-feature expression.
type exprNode struct {
	op     string
	module *unit
	name   string
	args   []*exprNode
}

func (e *exprNode) eval(supported func(module *unit, name string) bool) bool {
	switch e.op {
	case "not":
		return !e.args[0].eval(supported)
	case "and":
		for _, a := range e.args {
			if !a.eval(supported) {
				return false
			}
		}
		return true
	case "or":
		for _, a := range e.args {
			if a.eval(supported) {
				return true
			}
		}
		return false
	default:
		return supported(e.module, e.name)
	}
}

func (e *exprNode) refs(fn func(module *unit, name string)) {
	if e.op == "ref" {
		fn(e.module, e.name)
		return
	}
	for _, a := range e.args {
		a.refs(fn)
	}
}

func parseIfFeature(s string, u *unit) (*exprNode, error) {
	p := &exprParser{tokens: tokenizeExpr(s), unit: u}
	if len(p.tokens) == 0 {
		return nil, fmt.Errorf("empty expression")
	}
	e, err := p.or()
	if err != nil {
		return nil, err
	}
	if p.pos != len(p.tokens) {
		return nil, fmt.Errorf("unexpected %q", p.tokens[p.pos])
	}
	return e, nil
}

func tokenizeExpr(s string) []string {
	var out []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			out = append(out, cur.String())
			cur.Reset()
		}
	}
	for _, r := range s {
		switch r {
		case '(', ')':
			flush()
			out = append(out, string(r))
		case ' ', '\t', '\n', '\r':
			flush()
		default:
			cur.WriteRune(r)
		}
	}
	flush()
	return out
}

type exprParser struct {
	tokens []string
	pos    int
	unit   *unit
}

func (p *exprParser) peek() string {
	if p.pos < len(p.tokens) {
		return p.tokens[p.pos]
	}
	return ""
}

func (p *exprParser) or() (*exprNode, error) {
	first, err := p.and()
	if err != nil {
		return nil, err
	}
	args := []*exprNode{first}
	for p.peek() == "or" {
		p.pos++
		next, err := p.and()
		if err != nil {
			return nil, err
		}
		args = append(args, next)
	}
	if len(args) == 1 {
		return first, nil
	}
	return &exprNode{op: "or", args: args}, nil
}

func (p *exprParser) and() (*exprNode, error) {
	first, err := p.factor()
	if err != nil {
		return nil, err
	}
	args := []*exprNode{first}
	for p.peek() == "and" {
		p.pos++
		next, err := p.factor()
		if err != nil {
			return nil, err
		}
		args = append(args, next)
	}
	if len(args) == 1 {
		return first, nil
	}
	return &exprNode{op: "and", args: args}, nil
}

func (p *exprParser) factor() (*exprNode, error) {
	tok := p.peek()
	switch tok {
	case "":
		return nil, fmt.Errorf("unexpected end of expression")
	case "not":
		p.pos++
		inner, err := p.factor()
		if err != nil {
			return nil, err
		}
		return &exprNode{op: "not", args: []*exprNode{inner}}, nil
	case "(":
		p.pos++
		inner, err := p.or()
		if err != nil {
			return nil, err
		}
		if p.peek() != ")" {
			return nil, fmt.Errorf("missing closing parenthesis")
		}
		p.pos++
		return inner, nil
	case ")", "and", "or":
		return nil, fmt.Errorf("unexpected %q", tok)
	}
	p.pos++
	module := p.unit.module
	name := tok
	if pfx, local, ok := strings.Cut(tok, ":"); ok {
		target, known := p.unit.prefixes[pfx]
		if !known {
			return nil, fmt.Errorf("unknown prefix %q", pfx)
		}
		module, name = target, local
	}
	if name == "" {
		return nil, fmt.Errorf("empty feature name in %q", tok)
	}
	return &exprNode{op: "ref", module: module, name: name}, nil
}
