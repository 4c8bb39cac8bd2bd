package parser

import (
	"testing"

	domainerrors "yangkit/internal/core/errors"
	"yangkit/internal/engine/source"
)

const fooModule = `
// leading comment
module foo {
    yang-version 1.1;
    namespace "urn:foo";
    prefix f;
    import bar { prefix b; revision-date 2013-01-01; }
    include foo-sub;
    sv:semantic-version "1.2.0";
    revision 2012-01-01;
    revision "2014-05-05" { description 'newest'; }
    description "first line
                 second line" + ' tail';
    /* block
       comment */
    container c { leaf l { type string; } }
}
`

func TestParseStatements(t *testing.T) {
	stmts, err := Parse(fooModule)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if len(stmts) != 1 {
		t.Fatalf("expected one root statement, got %d", len(stmts))
	}
	root := stmts[0]
	if root.Keyword != "module" || root.Argument != "foo" || root.Line != 3 {
		t.Fatalf("unexpected root %+v", root)
	}
	if got := root.ArgOf("description"); got != "first line\nsecond line tail" {
		t.Fatalf("unexpected description %q", got)
	}
	c := root.Find("container")
	if c == nil || c.Find("leaf") == nil || c.Find("leaf").ArgOf("type") != "string" {
		t.Fatalf("expected nested container/leaf, got %+v", c)
	}
	sv := root.Find("sv:semantic-version")
	if sv == nil || sv.Prefix() != "sv" || sv.LocalKeyword() != "semantic-version" {
		t.Fatalf("expected prefixed extension keyword, got %+v", sv)
	}
}

func TestParseErrors(t *testing.T) {
	cases := map[string]string{
		"unterminated brace":  "module foo { prefix f;",
		"missing terminator":  "module foo",
		"unterminated string": `module foo { description "abc; }`,
		"bad keyword":         "module foo { 9bad x; }",
		"bad escape":          `module foo { description "\q"; }`,
		"open comment":        "module foo { /* }",
	}
	for name, src := range cases {
		src := src
		t.Run(name, func(t *testing.T) {
			if _, err := Parse(src); err == nil {
				t.Fatalf("expected parse error for %q", src)
			}
		})
	}
}

func TestTransformExtractsHeader(t *testing.T) {
	ast, err := Transform(source.NewTextSource(source.NewIdentifier("foo", ""), "foo.yang", []byte(fooModule)))
	if err != nil {
		t.Fatalf("transform failed: %v", err)
	}
	if ast.ID.Name != "foo" || ast.ID.Revision != "2014-05-05" {
		t.Fatalf("unexpected identifier %s", ast.ID)
	}
	if ast.ID.SemVer == nil || ast.ID.SemVer.String() != "1.2.0" {
		t.Fatalf("expected semantic version 1.2.0, got %v", ast.ID.SemVer)
	}
	if len(ast.Imports) != 1 || ast.Imports[0].Name != "bar" || ast.Imports[0].Prefix != "b" || ast.Imports[0].Revision != "2013-01-01" {
		t.Fatalf("unexpected imports %+v", ast.Imports)
	}
	if len(ast.Includes) != 1 || ast.Includes[0].Name != "foo-sub" {
		t.Fatalf("unexpected includes %+v", ast.Includes)
	}
	if deps := ast.Dependencies(); len(deps) != 2 {
		t.Fatalf("expected 2 dependencies, got %d", len(deps))
	}
	if ast.Type() != source.TypeAST {
		t.Fatalf("unexpected type %s", ast.Type())
	}
}

func TestTransformRejectsMismatch(t *testing.T) {
	_, err := Transform(source.NewTextSource(source.NewIdentifier("other", ""), "x.yang", []byte(fooModule)))
	if !domainerrors.IsCode(err, domainerrors.CodeSchemaSource) {
		t.Fatalf("expected schema source error for name mismatch, got %v", err)
	}
	_, err = Transform(source.NewTextSource(source.NewIdentifier("foo", "2012-01-01"), "x.yang", []byte(fooModule)))
	if !domainerrors.IsCode(err, domainerrors.CodeSchemaSource) {
		t.Fatalf("expected schema source error for revision mismatch, got %v", err)
	}
}

func TestTransformReportsPosition(t *testing.T) {
	_, err := Transform(source.NewTextSource(source.NewIdentifier("foo", ""), "foo.yang", []byte("module foo {\n  leaf x\n}")))
	var se *domainerrors.SchemaSourceError
	if err == nil {
		t.Fatal("expected error")
	}
	if !asSourceError(err, &se) || se.Line != 3 {
		t.Fatalf("expected source error at line 3, got %v", err)
	}
}

func TestSubmoduleRequiresBelongsTo(t *testing.T) {
	_, err := Transform(source.NewTextSource(source.NewIdentifier("s", ""), "s.yang", []byte("submodule s { }")))
	if !domainerrors.IsCode(err, domainerrors.CodeSchemaSource) {
		t.Fatalf("expected schema source error, got %v", err)
	}
}

func asSourceError(err error, target **domainerrors.SchemaSourceError) bool {
	se, ok := err.(*domainerrors.SchemaSourceError)
	if ok {
		*target = se
	}
	return ok
}
