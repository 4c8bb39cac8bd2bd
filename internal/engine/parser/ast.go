package parser

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Masterminds/semver/v3"

	domainerrors "yangkit/internal/core/errors"
	"yangkit/internal/engine/source"
)

// Dependency is an import or include edge declared by a source.
type Dependency struct {
	Name     string
	Revision source.Revision
	SemVer   *semver.Version
	Prefix   string
}

// Identifier returns the identifier requested by the edge.
func (d Dependency) Identifier() source.SourceIdentifier {
	return source.SourceIdentifier{Name: d.Name, Revision: d.Revision, SemVer: d.SemVer}
}

// ASTSource is a parsed module or submodule with its dependency header.
type ASTSource struct {
	ID        source.SourceIdentifier
	Origin    string
	Root      *Statement
	Submodule bool
	BelongsTo string
	Imports   []Dependency
	Includes  []Dependency
}

func (s *ASTSource) Identifier() source.SourceIdentifier { return s.ID }
func (s *ASTSource) Type() source.RepresentationType     { return source.TypeAST }

// Name is the declared module or submodule name.
func (s *ASTSource) Name() string { return s.Root.Argument }

// Dependencies returns import and include targets in declaration order.
func (s *ASTSource) Dependencies() []source.SourceIdentifier {
	out := make([]source.SourceIdentifier, 0, len(s.Imports)+len(s.Includes))
	for _, d := range s.Imports {
		out = append(out, d.Identifier())
	}
	for _, d := range s.Includes {
		out = append(out, d.Identifier())
	}
	return out
}

// IsSemanticVersionKeyword reports whether kw carries a module's semantic
// version, either as a module-level or an import-level extension.
func IsSemanticVersionKeyword(kw string) bool {
	_, local, ok := strings.Cut(kw, ":")
	return ok && (local == "semantic-version" || local == "openconfig-version")
}

// Transform parses text into an ASTSource. The declared name must match the
// requested identifier, as must the revision when the request carries one.
func Transform(text *source.TextSource) (*ASTSource, error) {
	name := text.SymbolicName()
	stmts, err := Parse(string(text.Content))
	if err != nil {
		var le *lexError
		if errors.As(err, &le) {
			return nil, &domainerrors.SchemaSourceError{Source: name, Line: le.line, Col: le.col, Message: le.msg}
		}
		return nil, &domainerrors.SchemaSourceError{Source: name, Message: "parse failed", Err: err}
	}
	if len(stmts) != 1 {
		return nil, &domainerrors.SchemaSourceError{Source: name, Message: fmt.Sprintf("expected exactly one top-level statement, found %d", len(stmts))}
	}
	root := stmts[0]
	ast, err := FromStatement(root, name)
	if err != nil {
		return nil, err
	}
	want := text.Identifier()
	if want.Name != "" && want.Name != ast.ID.Name {
		return nil, &domainerrors.SchemaSourceError{Source: name, Line: root.Line, Col: root.Col,
			Message: fmt.Sprintf("declared name %q does not match requested %q", ast.ID.Name, want.Name)}
	}
	if !want.Revision.IsZero() && want.Revision != ast.ID.Revision {
		return nil, &domainerrors.SchemaSourceError{Source: name, Line: root.Line, Col: root.Col,
			Message: fmt.Sprintf("latest revision %q does not match requested %q", ast.ID.Revision, want.Revision)}
	}
	if ast.ID.SemVer == nil {
		ast.ID.SemVer = want.SemVer
	}
	ast.Origin = text.Origin
	return ast, nil
}

// FromStatement extracts the dependency header from a parsed root statement.
func FromStatement(root *Statement, origin string) (*ASTSource, error) {
	fail := func(st *Statement, format string, args ...any) error {
		return &domainerrors.SchemaSourceError{Source: origin, Line: st.Line, Col: st.Col, Message: fmt.Sprintf(format, args...)}
	}
	switch root.Keyword {
	case "module", "submodule":
	default:
		return nil, fail(root, "expected module or submodule, found %s", root.Keyword)
	}
	if !root.HasArgument || !validIdentifier(root.Argument) {
		return nil, fail(root, "%s requires an identifier argument", root.Keyword)
	}

	ast := &ASTSource{Root: root, Submodule: root.Keyword == "submodule", Origin: origin}
	ast.ID.Name = root.Argument

	for _, st := range root.Substatements {
		switch {
		case st.Keyword == "revision":
			rev, err := source.ParseRevision(st.Argument)
			if err != nil {
				return nil, fail(st, "%v", err)
			}
			if rev.Compare(ast.ID.Revision) > 0 {
				ast.ID.Revision = rev
			}
		case st.Keyword == "belongs-to":
			ast.BelongsTo = st.Argument
		case st.Keyword == "import" || st.Keyword == "include":
			dep, err := dependency(st)
			if err != nil {
				return nil, fail(st, "%v", err)
			}
			if st.Keyword == "import" {
				if dep.Prefix == "" {
					return nil, fail(st, "import %s has no prefix", dep.Name)
				}
				ast.Imports = append(ast.Imports, dep)
			} else {
				ast.Includes = append(ast.Includes, dep)
			}
		case IsSemanticVersionKeyword(st.Keyword):
			v, err := semver.NewVersion(st.Argument)
			if err != nil {
				return nil, fail(st, "invalid semantic version %q: %v", st.Argument, err)
			}
			ast.ID.SemVer = v
		}
	}
	if ast.Submodule && ast.BelongsTo == "" {
		return nil, fail(root, "submodule %s has no belongs-to", root.Argument)
	}
	return ast, nil
}

func dependency(st *Statement) (Dependency, error) {
	dep := Dependency{Name: st.Argument, Prefix: st.ArgOf("prefix")}
	if !validIdentifier(dep.Name) {
		return dep, fmt.Errorf("invalid %s target %q", st.Keyword, dep.Name)
	}
	if rd := st.Find("revision-date"); rd != nil {
		rev, err := source.ParseRevision(rd.Argument)
		if err != nil {
			return dep, err
		}
		dep.Revision = rev
	}
	for _, sub := range st.Substatements {
		if IsSemanticVersionKeyword(sub.Keyword) {
			v, err := semver.NewVersion(sub.Argument)
			if err != nil {
				return dep, fmt.Errorf("invalid semantic version %q: %w", sub.Argument, err)
			}
			dep.SemVer = v
		}
	}
	return dep, nil
}
