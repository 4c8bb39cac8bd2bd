package reactor

import (
	"context"
	"fmt"
	"sort"
	"strings"

	domainerrors "yangkit/internal/core/errors"
	"yangkit/internal/engine/graph"
	"yangkit/internal/engine/parser"
)

func (r *reactor) linkSources(ctx context.Context) error {
	for _, u := range r.units {
		if err := r.linkHeader(u); err != nil {
			return err
		}
	}

	var mods []*modifier
	for _, u := range r.units {
		u := u
		for _, inc := range u.ast.Includes {
			inc := inc
			stmt := r.dependencyStmt(u, "include", inc.Name)
			mods = append(mods, &modifier{stmt: stmt, apply: func() (string, error) {
				return "", r.linkInclude(u, inc)
			}})
		}
	}
	if err := r.fixpoint(ctx, PhaseSourceLinkage, mods); err != nil {
		return err
	}
	if err := r.assignOwners(); err != nil {
		return err
	}

	mods = mods[:0]
	for _, u := range r.units {
		u := u
		for _, imp := range u.ast.Imports {
			imp := imp
			stmt := r.dependencyStmt(u, "import", imp.Name)
			mods = append(mods, &modifier{stmt: stmt, apply: func() (string, error) {
				return "", r.linkImport(u, stmt, imp)
			}})
		}
	}
	if err := r.fixpoint(ctx, PhaseSourceLinkage, mods); err != nil {
		return err
	}
	if err := r.checkCycles(); err != nil {
		return err
	}

	for _, u := range r.units {
		u := u
		r.walk(u.root, func(i int) bool {
			r.at(i).ns = u.module
			return true
		})
	}
	return nil
}

func (r *reactor) linkHeader(u *unit) error {
	root := u.root
	if v, ok := r.argOf(root, "yang-version"); ok && v != "1" && v != "1.1" {
		return r.sourceError(root, "unsupported yang-version %q", v)
	}
	if u.ast.Submodule {
		for _, bt := range r.childrenWith(root, "belongs-to") {
			u.prefix, _ = r.argOf(bt, "prefix")
		}
		if u.prefix == "" {
			return r.sourceError(root, "submodule %s: belongs-to has no prefix", u.name())
		}
		return nil
	}
	u.module = u
	u.namespace, _ = r.argOf(root, "namespace")
	if u.namespace == "" {
		return r.sourceError(root, "module %s has no namespace", u.name())
	}
	u.prefix, _ = r.argOf(root, "prefix")
	if u.prefix == "" {
		return r.sourceError(root, "module %s has no prefix", u.name())
	}
	return nil
}

func (r *reactor) dependencyStmt(u *unit, keyword, name string) int {
	for _, ch := range r.childrenWith(u.root, keyword) {
		if r.at(ch).arg == name {
			return ch
		}
	}
	return u.root
}

func (r *reactor) linkInclude(u *unit, dep parser.Dependency) error {
	var target *unit
	for _, s := range r.subs[dep.Name] {
		if dep.Revision.IsZero() || s.ast.ID.Revision == dep.Revision {
			target = s
			break
		}
	}
	if target == nil {
		return r.missingSource(dep, u)
	}
	owner := u.name()
	if u.ast.Submodule {
		owner = u.ast.BelongsTo
	}
	if target.ast.BelongsTo != owner {
		return r.sourceError(r.dependencyStmt(u, "include", dep.Name),
			"submodule %s belongs to %s, not %s", target.name(), target.ast.BelongsTo, owner)
	}
	u.includes = append(u.includes, target)
	return nil
}

// assignOwners binds every submodule to the module that includes it, falling
// back to the newest module named by belongs-to.
func (r *reactor) assignOwners() error {
	var claim func(m, u *unit)
	claim = func(m, u *unit) {
		for _, s := range u.includes {
			if s.module != nil {
				continue
			}
			s.module = m
			m.submodules = append(m.submodules, s)
			claim(m, s)
		}
	}
	for _, u := range r.units {
		if !u.ast.Submodule {
			claim(u, u)
		}
	}
	for _, u := range r.units {
		if !u.ast.Submodule || u.module != nil {
			continue
		}
		owners := r.modules[u.ast.BelongsTo]
		if len(owners) == 0 {
			return &domainerrors.SchemaResolutionError{
				Message:    fmt.Sprintf("submodule %s belongs to unknown module", u.name()),
				Unresolved: []string{u.ast.BelongsTo},
				Reason:     &domainerrors.SourceNotFoundError{Source: u.ast.BelongsTo},
			}
		}
		u.module = owners[0]
		owners[0].submodules = append(owners[0].submodules, u)
		claim(owners[0], u)
	}
	for _, u := range r.units {
		u.namespace = u.module.namespace
		u.prefixes[u.prefix] = u.module
	}
	return nil
}

func (r *reactor) linkImport(u *unit, stmt int, dep parser.Dependency) error {
	if dep.Prefix == u.prefix {
		return r.sourceError(stmt, "import %s reuses the prefix %q of %s", dep.Name, dep.Prefix, u.name())
	}
	if prev, ok := u.prefixes[dep.Prefix]; ok {
		return r.sourceError(stmt, "prefix %q already bound to %s", dep.Prefix, prev.name())
	}
	target, err := r.selectImport(u, dep)
	if err != nil {
		return err
	}
	u.prefixes[dep.Prefix] = target
	u.imports = append(u.imports, importLink{dep: dep, target: target})
	return nil
}

func (r *reactor) selectImport(u *unit, dep parser.Dependency) (*unit, error) {
	candidates := append([]*unit(nil), r.modules[dep.Name]...)
	if !dep.Revision.IsZero() {
		exact := candidates[:0]
		for _, c := range candidates {
			if c.ast.ID.Revision == dep.Revision {
				exact = append(exact, c)
			}
		}
		candidates = exact
	}
	if len(candidates) == 0 {
		return nil, r.missingSource(dep, u)
	}

	if r.opts.SemanticVersioning && dep.SemVer != nil {
		compatible := candidates[:0:0]
		for _, c := range candidates {
			v := c.ast.ID.EffectiveSemVer()
			if v.Major() == dep.SemVer.Major() && !v.LessThan(dep.SemVer) {
				compatible = append(compatible, c)
			}
		}
		if len(compatible) == 0 {
			return nil, versionMismatch(dep, u, fmt.Sprintf("no revision compatible with %s", dep.SemVer))
		}
		sort.SliceStable(compatible, func(i, j int) bool {
			return compatible[i].ast.ID.EffectiveSemVer().GreaterThan(compatible[j].ast.ID.EffectiveSemVer())
		})
		candidates = compatible
	}

	if c, ok := r.constraints[dep.Name]; ok {
		satisfying := candidates[:0:0]
		for _, cand := range candidates {
			if c.Check(cand.ast.ID.EffectiveSemVer()) {
				satisfying = append(satisfying, cand)
			}
		}
		if len(satisfying) == 0 {
			return nil, versionMismatch(dep, u, fmt.Sprintf("no revision satisfies %s", c))
		}
		candidates = satisfying
	}
	return candidates[0], nil
}

func (r *reactor) checkCycles() error {
	g := graph.NewGraph()
	for _, u := range r.units {
		edges := make([]graph.ImportEdge, 0, len(u.imports)+len(u.includes))
		for _, imp := range u.imports {
			edges = append(edges, graph.ImportEdge{To: imp.target.key, Kind: graph.EdgeImport})
		}
		for _, inc := range u.includes {
			edges = append(edges, graph.ImportEdge{To: inc.key, Kind: graph.EdgeInclude})
		}
		g.AddModule(graph.Module{Name: u.key, Submodule: u.ast.Submodule, Origin: u.origin()}, edges)
	}
	cycles := g.DetectCycles()
	if len(cycles) == 0 {
		return nil
	}
	cycle := cycles[0]
	path := strings.Join(append(append([]string(nil), cycle...), cycle[0]), " -> ")
	return &domainerrors.SchemaResolutionError{
		Message:    "import cycle detected",
		Unresolved: cycle,
		Reason:     domainerrors.New(domainerrors.CodeImportCycle, path),
	}
}

func (r *reactor) missingSource(dep parser.Dependency, u *unit) error {
	id := dep.Identifier()
	cause, ok := r.opts.Unavailable[id.Key()]
	if !ok {
		cause = r.opts.Unavailable[dep.Name]
	}
	return &domainerrors.SchemaResolutionError{
		Message:    fmt.Sprintf("missing dependency of %s", u.key),
		Unresolved: []string{id.String()},
		Reason:     &domainerrors.SourceNotFoundError{Source: id.String(), Err: cause},
	}
}

func versionMismatch(dep parser.Dependency, u *unit, detail string) error {
	id := dep.Identifier()
	return &domainerrors.SchemaResolutionError{
		Message:    fmt.Sprintf("version mismatch importing %s from %s", dep.Name, u.key),
		Unresolved: []string{id.String()},
		Reason:     domainerrors.New(domainerrors.CodeVersionMismatch, detail),
	}
}
