package reactor

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainerrors "yangkit/internal/core/errors"
	"yangkit/internal/engine/model"
	"yangkit/internal/engine/parser"
)

func mustAST(t *testing.T, text string) *parser.ASTSource {
	t.Helper()
	stmts, err := parser.Parse(text)
	require.NoError(t, err)
	require.Len(t, stmts, 1)
	ast, err := parser.FromStatement(stmts[0], stmts[0].Argument+".yang")
	require.NoError(t, err)
	return ast
}

func build(t *testing.T, opts Options, texts ...string) (*model.SchemaContext, error) {
	t.Helper()
	sources := make([]*parser.ASTSource, 0, len(texts))
	for _, text := range texts {
		sources = append(sources, mustAST(t, text))
	}
	return Build(context.Background(), sources, opts)
}

const foobar = `
module foobar {
  yang-version 1.1;
  namespace "foobar-namespace";
  prefix fb;
  revision 1970-01-01;

  feature test-feature-1;
  feature test-feature-2;

  container a;
  container b {
    if-feature test-feature-1;
  }
  container c {
    if-feature "fb:test-feature-2";
  }
}`

func TestFeatureGating(t *testing.T) {
	t.Parallel()

	tf1 := model.NewQName("foobar-namespace", "1970-01-01", "test-feature-1")
	tests := []struct {
		name     string
		features model.FeatureSet
		children []string
		pruned   []string
	}{
		{name: "none supported", features: model.NoFeatures(), children: []string{"a"}, pruned: []string{"/fb:b", "/fb:c"}},
		{name: "only test-feature-1", features: model.FeaturesOf(tf1), children: []string{"a", "b"}, pruned: []string{"/fb:c"}},
		{name: "all supported", features: nil, children: []string{"a", "b", "c"}},
		{name: "always-true predicate", features: func(model.QName) bool { return true }, children: []string{"a", "b", "c"}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			sc, err := build(t, Options{Features: tt.features}, foobar)
			require.NoError(t, err)

			m, ok := sc.FindModule("foobar", "1970-01-01")
			require.True(t, ok)
			var names []string
			for _, c := range m.ChildNodes() {
				names = append(names, c.QName.Local)
			}
			assert.Equal(t, tt.children, names)
			assert.Equal(t, tt.pruned, sc.Pruned())
		})
	}
}

func TestFeatureGating_NilMatchesAlwaysTrue(t *testing.T) {
	t.Parallel()

	texts := []string{foobar, `
module gated {
  namespace "urn:gated";
  prefix g;
  feature x;
  feature y { if-feature x; }
  grouping grp { leaf from-grp { if-feature y; type string; } }
  container top {
    uses grp;
    leaf plain { if-feature "x or y"; type string; }
  }
}`}
	paths := func(sc *model.SchemaContext) []string {
		var out []string
		var walk func(nodes []*model.SchemaNode)
		walk = func(nodes []*model.SchemaNode) {
			for _, n := range nodes {
				out = append(out, n.Path)
				walk(n.ChildNodes())
			}
		}
		for _, m := range sc.Modules() {
			walk(m.ChildNodes())
		}
		return out
	}

	unset, err := build(t, Options{}, texts...)
	require.NoError(t, err)
	allTrue, err := build(t, Options{Features: func(model.QName) bool { return true }}, texts...)
	require.NoError(t, err)

	assert.Equal(t, paths(unset), paths(allTrue))
	assert.Equal(t, unset.Pruned(), allTrue.Pruned())
	assert.Empty(t, allTrue.Pruned())
}

func TestFeatureGating_Expressions(t *testing.T) {
	t.Parallel()

	text := `
module expr {
  namespace "urn:expr";
  prefix ex;
  revision 2020-01-01;
  feature f1;
  feature f2;
  feature f3 {
    if-feature f1;
  }
  container both { if-feature "f1 and f2"; }
  container either { if-feature "f1 or f2"; }
  container only-f1 { if-feature "f1 and not f2"; }
  container grouped { if-feature "(f1 or f2) and not (f1 and f2)"; }
  container needs-f3 { if-feature f3; }
}`
	q := func(local string) model.QName { return model.NewQName("urn:expr", "2020-01-01", local) }

	tests := []struct {
		name     string
		features model.FeatureSet
		want     []string
	}{
		{name: "f1", features: model.FeaturesOf(q("f1")), want: []string{"either", "only-f1", "grouped"}},
		{name: "f2", features: model.FeaturesOf(q("f2")), want: []string{"either", "grouped"}},
		{name: "f1 and f2", features: model.FeaturesOf(q("f1"), q("f2")), want: []string{"both", "either"}},
		{name: "f3 without f1", features: model.FeaturesOf(q("f3")), want: nil},
		{name: "f1 and f3", features: model.FeaturesOf(q("f1"), q("f3")), want: []string{"either", "only-f1", "grouped", "needs-f3"}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			sc, err := build(t, Options{Features: tt.features}, text)
			require.NoError(t, err)
			m, _ := sc.FindModule("expr", "")
			var names []string
			for _, c := range m.ChildNodes() {
				names = append(names, c.QName.Local)
			}
			assert.Equal(t, tt.want, names)
		})
	}
}

func TestFeatureGating_PrunesUsesAndAugment(t *testing.T) {
	t.Parallel()

	base := `
module base {
  namespace "urn:base";
  prefix b;
  feature extra;
  grouping g {
    leaf from-grouping { type string; }
  }
  container top {
    uses g {
      if-feature extra;
    }
    leaf plain { type string; }
  }
}`
	aug := `
module aug {
  namespace "urn:aug";
  prefix a;
  import base { prefix b; }
  feature more;
  augment "/b:top" {
    if-feature more;
    leaf added { type string; }
  }
}`
	sc, err := build(t, Options{Features: model.NoFeatures()}, base, aug)
	require.NoError(t, err)

	m, _ := sc.FindModule("base", "")
	top, ok := m.ChildByLocalName("top")
	require.True(t, ok)
	require.Len(t, top.ChildNodes(), 1)
	assert.Equal(t, "plain", top.ChildNodes()[0].QName.Local)
	assert.ElementsMatch(t, []string{"/b:top/b:from-grouping", "/b:top/a:added"}, sc.Pruned())

	augMod, _ := sc.FindModule("aug", "")
	assert.Empty(t, augMod.Augmentations)

	sc, err = build(t, Options{}, base, aug)
	require.NoError(t, err)
	m, _ = sc.FindModule("base", "")
	top, _ = m.ChildByLocalName("top")
	assert.Len(t, top.ChildNodes(), 3)
}

func TestFeatureGating_UnknownFeature(t *testing.T) {
	t.Parallel()

	_, err := build(t, Options{}, `
module m {
  namespace "urn:m";
  prefix m;
  container c { if-feature missing; }
  container d { if-feature also-missing; }
}`)
	var unresolved *domainerrors.SomeModifiersUnresolvedError
	require.ErrorAs(t, err, &unresolved)
	assert.Equal(t, PhaseFeatureGating.String(), unresolved.Phase)
	assert.Len(t, unresolved.Unresolved, 2)
}

func TestUsesWithRefineAndAugment(t *testing.T) {
	t.Parallel()

	sc, err := build(t, Options{}, `
module uses-aug {
  namespace "urn:ua";
  prefix ua;
  revision 2020-01-01;
  grouping g {
    container inner {
      leaf x {
        type string;
        description "original";
      }
    }
  }
  container top {
    uses g {
      refine "inner/x" {
        description "refined";
        default "v";
      }
      augment "inner" {
        leaf added { type string; }
      }
    }
  }
}`)
	require.NoError(t, err)

	m, ok := sc.FindModule("uses-aug", "2020-01-01")
	require.True(t, ok)
	top, ok := m.ChildByLocalName("top")
	require.True(t, ok)

	inner, ok := top.DataChildByName(model.NewQName("urn:ua", "2020-01-01", "inner"))
	require.True(t, ok)
	assert.True(t, inner.IsAddedByUses())
	assert.Equal(t, "/ua:top/ua:inner", inner.Path)

	x, ok := inner.ChildByLocalName("x")
	require.True(t, ok)
	assert.Equal(t, "refined", x.Description)
	assert.Equal(t, "v", x.Default)

	added, ok := inner.ChildByLocalName("added")
	require.True(t, ok)
	assert.True(t, added.IsAugmenting())

	require.Len(t, top.Uses, 1)
	u := top.Uses[0]
	assert.Equal(t, model.NewQName("urn:ua", "2020-01-01", "g"), u.Grouping)
	assert.Equal(t, []string{"inner/x"}, u.Refines)
	require.Len(t, u.Augmentations, 1)
	assert.Equal(t, "inner", u.Augmentations[0].TargetPath)
	require.Len(t, u.Augmentations[0].ChildNodes(), 1)
	assert.Same(t, added, u.Augmentations[0].ChildNodes()[0])

	require.Len(t, m.Groupings, 1)
	orig, ok := childByLocal(m.Groupings[0].Children, "inner")
	require.True(t, ok)
	ox, _ := orig.ChildByLocalName("x")
	assert.Equal(t, "original", ox.Description)
}

func childByLocal(nodes []*model.SchemaNode, local string) (*model.SchemaNode, bool) {
	for _, n := range nodes {
		if n.QName.Local == local {
			return n, true
		}
	}
	return nil, false
}

func TestAugmentTargetsUsesInjectedNode(t *testing.T) {
	t.Parallel()

	base := `
module base {
  namespace "urn:base";
  prefix b;
  grouping wrapper {
    container inner {
      uses leaves;
    }
  }
  grouping leaves {
    leaf l { type string; }
  }
  container top {
    uses wrapper;
  }
}`
	// Module names sort on either side of "base" so the augment is visited
	// both before and after the uses it depends on.
	for _, name := range []string{"a-ext", "z-ext"} {
		name := name
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			ext := `
module ` + name + ` {
  namespace "urn:` + name + `";
  prefix e;
  import base { prefix b; }
  augment "/b:top/b:inner" {
    leaf extra { type string; }
  }
}`
			sc, err := build(t, Options{}, base, ext)
			require.NoError(t, err)

			m, _ := sc.FindModule("base", "")
			top, _ := m.ChildByLocalName("top")
			inner, ok := top.ChildByLocalName("inner")
			require.True(t, ok)

			extra, ok := inner.DataChildByName(model.NewQName("urn:"+name, "", "extra"))
			require.True(t, ok)
			assert.True(t, extra.IsAugmenting())
			_, ok = inner.ChildByLocalName("l")
			assert.True(t, ok)

			em, _ := sc.FindModule(name, "")
			require.Len(t, em.Augmentations, 1)
			assert.Same(t, extra, em.Augmentations[0].ChildNodes()[0])
		})
	}
}

func TestAugment_UnresolvableTargetsListed(t *testing.T) {
	t.Parallel()

	_, err := build(t, Options{}, `
module base {
  namespace "urn:base";
  prefix b;
  container top;
}`, `
module ext {
  namespace "urn:ext";
  prefix e;
  import base { prefix b; }
  augment "/b:top/b:nowhere" {
    leaf x { type string; }
  }
  augment "/b:missing" {
    leaf y { type string; }
  }
}`)
	var unresolved *domainerrors.SomeModifiersUnresolvedError
	require.ErrorAs(t, err, &unresolved)
	assert.Equal(t, PhaseFullDeclaration.String(), unresolved.Phase)
	require.Len(t, unresolved.Unresolved, 2)
	assert.Equal(t, "/b:top/b:nowhere", unresolved.Unresolved[0].Argument)
	assert.Equal(t, "/b:missing", unresolved.Unresolved[1].Argument)
	assert.Equal(t, "ext.yang", unresolved.Unresolved[0].Source)
	assert.True(t, domainerrors.IsCode(err, domainerrors.CodeModifiersPending))
}

func TestUses_RecursiveGroupingStalls(t *testing.T) {
	t.Parallel()

	_, err := build(t, Options{}, `
module loop {
  namespace "urn:loop";
  prefix l;
  grouping a { container x { uses b; } }
  grouping b { container y { uses a; } }
  container top { uses a; }
}`)
	var unresolved *domainerrors.SomeModifiersUnresolvedError
	require.ErrorAs(t, err, &unresolved)
	assert.Len(t, unresolved.Unresolved, 3)
}

func TestLinkage_MissingImport(t *testing.T) {
	t.Parallel()

	_, err := build(t, Options{}, `
module app {
  namespace "urn:app";
  prefix app;
  import absent { prefix ab; revision-date 2020-01-01; }
}`)
	var resolution *domainerrors.SchemaResolutionError
	require.ErrorAs(t, err, &resolution)
	assert.Equal(t, []string{"absent@2020-01-01"}, resolution.Unresolved)
	assert.True(t, domainerrors.IsCode(err, domainerrors.CodeSourceNotFound))
}

func TestLinkage_MissingImportCarriesFetchError(t *testing.T) {
	t.Parallel()

	fetchErr := errors.New("absent.yang: unexpected end of input")
	_, err := build(t, Options{Unavailable: map[string]error{"absent@2020-01-01": fetchErr}}, `
module app {
  namespace "urn:app";
  prefix app;
  import absent { prefix ab; revision-date 2020-01-01; }
}`)
	var resolution *domainerrors.SchemaResolutionError
	require.ErrorAs(t, err, &resolution)
	assert.Equal(t, []string{"absent@2020-01-01"}, resolution.Unresolved)
	assert.ErrorIs(t, err, fetchErr)
	assert.True(t, domainerrors.IsCode(err, domainerrors.CodeSourceNotFound))
}

func TestLinkage_ImportCycle(t *testing.T) {
	t.Parallel()

	_, err := build(t, Options{}, `
module a {
  namespace "urn:a";
  prefix a;
  import b { prefix b; }
}`, `
module b {
  namespace "urn:b";
  prefix b;
  import a { prefix a; }
}`)
	var resolution *domainerrors.SchemaResolutionError
	require.ErrorAs(t, err, &resolution)
	assert.Equal(t, []string{"a", "b"}, resolution.Unresolved)
	assert.True(t, domainerrors.IsCode(err, domainerrors.CodeImportCycle))
	assert.Contains(t, err.Error(), "a -> b -> a")
}

func TestLinkage_DuplicatePrefix(t *testing.T) {
	t.Parallel()

	_, err := build(t, Options{}, `
module lib {
  namespace "urn:lib";
  prefix lib;
}`, `
module other {
  namespace "urn:other";
  prefix o;
}`, `
module app {
  namespace "urn:app";
  prefix app;
  import lib { prefix x; }
  import other { prefix x; }
}`)
	var sourceErr *domainerrors.SchemaSourceError
	require.ErrorAs(t, err, &sourceErr)
	assert.Equal(t, "app.yang", sourceErr.Source)
}

func lib(revision, version string) string {
	return `
module lib {
  namespace "urn:lib";
  prefix lib;
  revision ` + revision + `;
  extension semantic-version { argument version; }
  lib:semantic-version "` + version + `";
  container c;
}`
}

const semverApp = `
module app {
  namespace "urn:app";
  prefix app;
  import lib {
    prefix l;
    l:semantic-version "1.1.0";
  }
}`

func TestLinkage_SemanticVersions(t *testing.T) {
	t.Parallel()

	libs := []string{lib("2019-01-01", "1.0.0"), lib("2020-01-01", "1.2.0"), lib("2021-01-01", "1.4.0"), lib("2022-01-01", "2.0.0")}

	tests := []struct {
		name    string
		opts    Options
		libs    []string
		wantRev string
		wantErr domainerrors.ErrorCode
	}{
		{name: "latest revision without semver", opts: Options{}, libs: libs, wantRev: "2022-01-01"},
		{name: "highest compatible", opts: Options{SemanticVersioning: true}, libs: libs, wantRev: "2021-01-01"},
		{
			name:    "constraint narrows",
			opts:    Options{SemanticVersioning: true, VersionConstraints: map[string]string{"lib": "<1.3.0"}},
			libs:    libs,
			wantRev: "2020-01-01",
		},
		{name: "only older major", opts: Options{SemanticVersioning: true}, libs: libs[:1], wantErr: domainerrors.CodeVersionMismatch},
		{
			name:    "constraint unsatisfied",
			opts:    Options{VersionConstraints: map[string]string{"lib": ">=3.0.0"}},
			libs:    libs,
			wantErr: domainerrors.CodeVersionMismatch,
		},
		{
			name:    "invalid constraint",
			opts:    Options{VersionConstraints: map[string]string{"lib": "not a range"}},
			libs:    libs,
			wantErr: domainerrors.CodeValidationError,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			sc, err := build(t, tt.opts, append(append([]string(nil), tt.libs...), semverApp)...)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.True(t, domainerrors.IsCode(err, domainerrors.CodeSchemaResolution))
				assert.True(t, domainerrors.IsCode(err, tt.wantErr), "got %v", err)
				return
			}
			require.NoError(t, err)
			app, ok := sc.FindModule("app", "")
			require.True(t, ok)
			require.Len(t, app.Imports, 1)
			assert.Equal(t, tt.wantRev, string(app.Imports[0].Revision))
		})
	}
}

func TestDefinition_Extensions(t *testing.T) {
	t.Parallel()

	t.Run("usage is recorded", func(t *testing.T) {
		t.Parallel()
		sc, err := build(t, Options{}, `
module ext {
  namespace "urn:ext";
  prefix x;
  revision 2020-02-02;
  extension annotate { argument text; }
}`, `
module user {
  namespace "urn:user";
  prefix u;
  import ext { prefix x; }
  container c {
    x:annotate "hello";
  }
}`)
		require.NoError(t, err)
		m, _ := sc.FindModule("user", "")
		c, _ := m.ChildByLocalName("c")
		require.Len(t, c.Extensions, 1)
		assert.Equal(t, model.NewQName("urn:ext", "2020-02-02", "annotate"), c.Extensions[0].Extension)
		assert.Equal(t, "hello", c.Extensions[0].Argument)
	})

	t.Run("undefined extension stays pending", func(t *testing.T) {
		t.Parallel()
		_, err := build(t, Options{}, `
module ext {
  namespace "urn:ext";
  prefix x;
}`, `
module user {
  namespace "urn:user";
  prefix u;
  import ext { prefix x; }
  x:missing "value";
}`)
		var unresolved *domainerrors.SomeModifiersUnresolvedError
		require.ErrorAs(t, err, &unresolved)
		assert.Equal(t, PhaseStatementDefinition.String(), unresolved.Phase)
		require.Len(t, unresolved.Unresolved, 1)
		assert.Equal(t, "x:missing", unresolved.Unresolved[0].Keyword)
	})

	t.Run("unknown prefix fails immediately", func(t *testing.T) {
		t.Parallel()
		_, err := build(t, Options{}, `
module user {
  namespace "urn:user";
  prefix u;
  nope:thing;
}`)
		var sourceErr *domainerrors.SchemaSourceError
		require.ErrorAs(t, err, &sourceErr)
		assert.Equal(t, 5, sourceErr.Line)
	})

	t.Run("unknown keyword fails immediately", func(t *testing.T) {
		t.Parallel()
		_, err := build(t, Options{}, `
module user {
  namespace "urn:user";
  prefix u;
  contianer c;
}`)
		var sourceErr *domainerrors.SchemaSourceError
		require.ErrorAs(t, err, &sourceErr)
		assert.Contains(t, sourceErr.Message, "contianer")
	})
}

func TestSubmodulesMerge(t *testing.T) {
	t.Parallel()

	sc, err := build(t, Options{}, `
module main {
  namespace "urn:main";
  prefix m;
  revision 2021-06-01;
  include part;
  container from-main;
}`, `
submodule part {
  belongs-to main { prefix m; }
  feature sub-feature;
  container from-part {
    if-feature m:sub-feature;
  }
}`)
	require.NoError(t, err)

	require.Len(t, sc.Modules(), 1)
	m := sc.Modules()[0]
	assert.Equal(t, []string{"part"}, m.Submodules)
	part, ok := m.DataChildByName(model.NewQName("urn:main", "2021-06-01", "from-part"))
	require.True(t, ok)
	assert.Equal(t, "/m:from-part", part.Path)
	_, ok = m.FeatureByName("sub-feature")
	assert.True(t, ok)
}

func TestSubmodule_WrongOwner(t *testing.T) {
	t.Parallel()

	_, err := build(t, Options{}, `
module main {
  namespace "urn:main";
  prefix m;
  include part;
}`, `
submodule part {
  belongs-to other { prefix o; }
}`)
	var sourceErr *domainerrors.SchemaSourceError
	require.ErrorAs(t, err, &sourceErr)
}

func TestBuild_Cancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Build(ctx, []*parser.ASTSource{mustAST(t, foobar)}, Options{})
	assert.True(t, errors.Is(err, context.Canceled))
}
