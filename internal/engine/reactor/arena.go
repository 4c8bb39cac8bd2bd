package reactor

import (
	"strings"

	"yangkit/internal/engine/parser"
)

// stmtCtx is the mutable, in-progress form of one statement occurrence.
// Links to other statements are arena indices, -1 when unset.
type stmtCtx struct {
	keyword string
	arg     string
	line    int
	col     int

	// unit is the source the statement text was written in; prefixes resolve
	// against it. ns is the module whose namespace the node lives in.
	unit *unit
	ns   *unit

	parent   int
	scope    int
	children []int

	origin      int
	addedBy     int
	addedByUses bool
	augmenting  bool
	copied      bool
	introduced  []int

	// uses, augment and refine progress
	resolved bool
	expanded bool
	grouping int
	target   int

	extension int
	expr      *exprNode

	featureKnown bool
	featureOn    bool

	pruned bool
}

func (c *stmtCtx) isExtensionUsage() bool { return strings.Contains(c.keyword, ":") }

// name is the identifier a schema path step matches against.
func (c *stmtCtx) name() string {
	if c.keyword == "input" || c.keyword == "output" {
		return c.keyword
	}
	return c.arg
}

// unit is one parsed module or submodule taking part in resolution.
type unit struct {
	ast  *parser.ASTSource
	key  string
	root int

	// module is the owning module; itself for modules.
	module     *unit
	namespace  string
	prefix     string
	prefixes   map[string]*unit
	imports    []importLink
	includes   []*unit
	submodules []*unit
}

type importLink struct {
	dep    parser.Dependency
	target *unit
}

func (u *unit) name() string { return u.ast.ID.Name }

func (u *unit) origin() string {
	if u.ast.Origin != "" {
		return u.ast.Origin
	}
	return u.key
}

// roots returns the root statements of the module and all its submodules.
func (u *unit) roots() []int {
	out := []int{u.root}
	for _, s := range u.submodules {
		out = append(out, s.root)
	}
	return out
}

type arena struct {
	stmts []*stmtCtx
}

func (a *arena) at(i int) *stmtCtx { return a.stmts[i] }

func (a *arena) add(c *stmtCtx) int {
	a.stmts = append(a.stmts, c)
	return len(a.stmts) - 1
}

// load appends st and its substatements, returning the index of st.
func (a *arena) load(st *parser.Statement, u *unit, parent int) int {
	idx := a.add(&stmtCtx{
		keyword:   st.Keyword,
		arg:       st.Argument,
		line:      st.Line,
		col:       st.Col,
		unit:      u,
		parent:    parent,
		scope:     parent,
		origin:    -1,
		addedBy:   -1,
		grouping:  -1,
		target:    -1,
		extension: -1,
	})
	for _, sub := range st.Substatements {
		child := a.load(sub, u, idx)
		a.stmts[idx].children = append(a.stmts[idx].children, child)
	}
	return idx
}

// walk visits i and its descendants depth first. Returning false skips the
// subtree.
func (a *arena) walk(i int, fn func(int) bool) {
	if !fn(i) {
		return
	}
	for _, ch := range a.stmts[i].children {
		a.walk(ch, fn)
	}
}

func (a *arena) childrenWith(i int, keyword string) []int {
	var out []int
	for _, ch := range a.stmts[i].children {
		if a.stmts[ch].keyword == keyword {
			out = append(out, ch)
		}
	}
	return out
}

func (a *arena) argOf(i int, keyword string) (string, bool) {
	for _, ch := range a.stmts[i].children {
		if a.stmts[ch].keyword == keyword {
			return a.stmts[ch].arg, true
		}
	}
	return "", false
}

func (a *arena) removeChild(parent, child int) {
	p := a.stmts[parent]
	for k, ch := range p.children {
		if ch == child {
			p.children = append(p.children[:k], p.children[k+1:]...)
			return
		}
	}
}

// insertAfter places children into parent right after anchor, or at the end
// when anchor is not a child.
func (a *arena) insertAfter(parent, anchor int, children []int) {
	p := a.stmts[parent]
	pos := len(p.children)
	for k, ch := range p.children {
		if ch == anchor {
			pos = k + 1
			break
		}
	}
	out := make([]int, 0, len(p.children)+len(children))
	out = append(out, p.children[:pos]...)
	out = append(out, children...)
	out = append(out, p.children[pos:]...)
	p.children = out
}
