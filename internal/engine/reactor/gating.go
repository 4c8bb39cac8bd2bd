package reactor

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"yangkit/internal/engine/model"
	"yangkit/internal/shared/observability"
)

func (r *reactor) gateFeatures(ctx context.Context) error {
	var mods []*modifier
	for _, m := range r.sortedModules() {
		names := make([]string, 0, len(r.features[m]))
		for name := range r.features[m] {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			f := r.features[m][name]
			mods = append(mods, &modifier{stmt: f, apply: func() (string, error) { return r.decideFeature(f), nil }})
		}
	}
	for i, c := range r.stmts {
		i := i
		if c.keyword != "if-feature" || c.parent < 0 || c.expr == nil {
			continue
		}
		switch r.at(c.parent).keyword {
		case "feature", "refine":
			continue
		}
		mods = append(mods, &modifier{stmt: i, apply: func() (string, error) { return r.evaluateGuard(i), nil }})
	}
	if err := r.fixpoint(ctx, PhaseFeatureGating, mods); err != nil {
		return err
	}
	r.propagatePruning()
	return nil
}

func (r *reactor) featureState(module *unit, name string) (on bool, reason string) {
	f, ok := r.features[module][name]
	if !ok {
		return false, fmt.Sprintf("feature %s not found in %s", name, module.name())
	}
	fc := r.at(f)
	if !fc.featureKnown {
		return false, fmt.Sprintf("feature %s:%s undecided", module.name(), name)
	}
	return fc.featureOn, ""
}

// ready reports the first unknown feature referenced by expr.
func (r *reactor) ready(expr *exprNode) string {
	var reason string
	expr.refs(func(m *unit, name string) {
		if reason != "" {
			return
		}
		_, reason = r.featureState(m, name)
	})
	return reason
}

func (r *reactor) supported(m *unit, name string) bool {
	on, _ := r.featureState(m, name)
	return on
}

// decideFeature settles a feature once every feature its own if-feature
// statements mention is settled.
func (r *reactor) decideFeature(f int) string {
	fc := r.at(f)
	guards := r.childrenWith(f, "if-feature")
	for _, g := range guards {
		if reason := r.ready(r.at(g).expr); reason != "" {
			return reason
		}
	}
	m := fc.unit.module
	on := r.opts.Features.Supports(model.NewQName(m.namespace, m.ast.ID.Revision, fc.arg))
	for _, g := range guards {
		if !on {
			break
		}
		on = r.at(g).expr.eval(r.supported)
	}
	fc.featureOn = on
	fc.featureKnown = true
	return ""
}

func (r *reactor) evaluateGuard(i int) string {
	c := r.at(i)
	if reason := r.ready(c.expr); reason != "" {
		return reason
	}
	if !c.expr.eval(r.supported) {
		r.at(c.parent).pruned = true
	}
	return ""
}

// propagatePruning extends pruning to subtrees and to everything a pruned
// uses or augment introduced, then records the pruned data paths.
func (r *reactor) propagatePruning() {
	var queue []int
	for i, c := range r.stmts {
		if c.pruned {
			queue = append(queue, i)
		}
	}
	for len(queue) > 0 {
		i := queue[0]
		queue = queue[1:]
		c := r.at(i)
		for _, next := range append(append([]int(nil), c.children...), c.introduced...) {
			if n := r.at(next); !n.pruned {
				n.pruned = true
				queue = append(queue, next)
			}
		}
	}

	pruned := 0
	for i, c := range r.stmts {
		if !c.pruned || !r.inDataTree(i) {
			continue
		}
		pruned++
		if dataKeywords[c.keyword] && (c.parent < 0 || !r.at(c.parent).pruned) {
			r.pruned = append(r.pruned, r.schemaPath(i))
		}
	}
	sort.Strings(r.pruned)
	observability.PrunedStatementsTotal.Add(float64(pruned))
}

// inDataTree reports whether i hangs off a module root without passing
// through a grouping definition or an unapplied augment.
func (r *reactor) inDataTree(i int) bool {
	for k := r.at(i).parent; k >= 0; k = r.at(k).parent {
		switch r.at(k).keyword {
		case "grouping", "augment", "refine":
			return false
		}
	}
	return true
}

func (r *reactor) schemaPath(i int) string {
	var steps []string
	for k := i; k >= 0; k = r.at(k).parent {
		c := r.at(k)
		if dataKeywords[c.keyword] {
			steps = append(steps, c.ns.prefix+":"+c.name())
		}
	}
	for a, b := 0, len(steps)-1; a < b; a, b = a+1, b-1 {
		steps[a], steps[b] = steps[b], steps[a]
	}
	return "/" + strings.Join(steps, "/")
}

func (r *reactor) sortedModules() []*unit {
	var out []*unit
	for _, u := range r.units {
		if !u.ast.Submodule {
			out = append(out, u)
		}
	}
	return out
}
