package reactor

import (
	"context"
	"fmt"
	"strings"
)

func (r *reactor) declareStatements(ctx context.Context) error {
	var mods []*modifier
	for i := range r.stmts {
		i := i
		c := r.at(i)
		switch {
		case c.keyword == "uses":
			mods = append(mods, &modifier{stmt: i, apply: func() (string, error) { return r.expandUses(i) }})
		case c.keyword == "augment" && c.parent >= 0 && r.at(c.parent).parent < 0:
			mods = append(mods, &modifier{stmt: i, apply: func() (string, error) { return r.applyAugment(i) }})
		}
	}
	return r.fixpoint(ctx, PhaseFullDeclaration, mods)
}

// expandUses copies the grouping into the parent of the uses, then applies
// refines and uses-scoped augments against the copy.
func (r *reactor) expandUses(i int) (string, error) {
	u := r.at(i)
	if !u.expanded {
		g, reason, err := r.findGrouping(i)
		if err != nil || reason != "" {
			return reason, err
		}
		if pending := r.pendingWithin(g); pending >= 0 {
			return fmt.Sprintf("grouping %s waits on %s %s", r.at(g).arg, r.at(pending).keyword, r.at(pending).arg), nil
		}
		u.grouping = g
		r.copyGrouping(i, g)
		u.expanded = true
	}

	for _, ref := range r.childrenWith(i, "refine") {
		if r.at(ref).resolved {
			continue
		}
		target, reason, err := r.resolveDescendant(i, ref)
		if err != nil || reason != "" {
			return reason, err
		}
		r.applyRefine(ref, target)
		r.at(ref).resolved = true
	}

	for _, aug := range r.childrenWith(i, "augment") {
		if r.at(aug).resolved {
			continue
		}
		target, reason, err := r.resolveDescendant(i, aug)
		if err != nil || reason != "" {
			return reason, err
		}
		r.moveAugmentChildren(aug, target)
	}

	u.resolved = true
	return "", nil
}

// findGrouping resolves the grouping named by a uses statement. Prefixed
// names look at the top level of the bound module; bare names walk the
// lexical scope outwards, then the module and its submodules.
func (r *reactor) findGrouping(i int) (int, string, error) {
	u := r.at(i)
	module := u.unit.module
	name := u.arg
	if pfx, local, ok := strings.Cut(u.arg, ":"); ok {
		target, known := u.unit.prefixes[pfx]
		if !known {
			return -1, "", r.sourceError(i, "unknown prefix %q in uses %s", pfx, u.arg)
		}
		if target != u.unit.module {
			if g, found := r.groupings[target][local]; found {
				return g, "", nil
			}
			return -1, fmt.Sprintf("grouping %s not found in %s", local, target.name()), nil
		}
		name = local
	}
	for s := u.scope; s >= 0; s = r.at(s).scope {
		for _, g := range r.childrenWith(s, "grouping") {
			if r.at(g).arg == name {
				return g, "", nil
			}
		}
	}
	if g, found := r.groupings[module][name]; found {
		return g, "", nil
	}
	return -1, fmt.Sprintf("grouping %s not found", name), nil
}

// pendingWithin returns a uses or augment inside g that has not completed,
// or -1.
func (r *reactor) pendingWithin(g int) int {
	pending := -1
	r.walk(g, func(i int) bool {
		if pending >= 0 {
			return false
		}
		c := r.at(i)
		if (c.keyword == "uses" || c.keyword == "augment") && !c.resolved {
			pending = i
			return false
		}
		return true
	})
	return pending
}

func (r *reactor) copyGrouping(usesIdx, g int) {
	u := r.at(usesIdx)
	copies := make(map[int]int)
	var tops []int
	for _, ch := range r.at(g).children {
		kw := r.at(ch).keyword
		if !dataKeywords[kw] && kw != "uses" {
			continue
		}
		tops = append(tops, r.copyTree(ch, u.parent, u.ns, u.augmenting, copies))
	}
	r.relink(copies)
	for _, t := range tops {
		if c := r.at(t); c.addedBy < 0 {
			c.addedBy = usesIdx
		}
	}
	u.introduced = tops
	r.insertAfter(u.parent, usesIdx, tops)
}

// copyTree deep-copies src under parent. Definitions nested in the source are
// left behind.
func (r *reactor) copyTree(src, parent int, ns *unit, augmenting bool, copies map[int]int) int {
	s := r.at(src)
	cp := *s
	cp.parent = parent
	cp.scope = parent
	cp.children = nil
	cp.origin = src
	cp.ns = ns
	cp.addedByUses = true
	cp.augmenting = augmenting || s.augmenting
	cp.copied = true
	idx := r.add(&cp)
	copies[src] = idx
	for _, ch := range s.children {
		kw := r.at(ch).keyword
		if kw == "grouping" || kw == "typedef" {
			continue
		}
		child := r.copyTree(ch, idx, ns, augmenting, copies)
		r.at(idx).children = append(r.at(idx).children, child)
	}
	return idx
}

// relink maps intra-copy links onto the new nodes.
func (r *reactor) relink(copies map[int]int) {
	mapped := func(i int) int {
		if n, ok := copies[i]; ok {
			return n
		}
		return -1
	}
	for _, dst := range copies {
		c := r.at(dst)
		if c.addedBy >= 0 {
			c.addedBy = mapped(c.addedBy)
		}
		if c.target >= 0 {
			c.target = mapped(c.target)
		}
		if len(c.introduced) > 0 {
			intro := make([]int, 0, len(c.introduced))
			for _, k := range c.introduced {
				if n := mapped(k); n >= 0 {
					intro = append(intro, n)
				}
			}
			c.introduced = intro
		}
	}
}

var additiveRefines = map[string]bool{"if-feature": true, "must": true}

func (r *reactor) applyRefine(ref, target int) {
	for _, ch := range r.at(ref).children {
		kw := r.at(ch).keyword
		if !additiveRefines[kw] && !r.at(ch).isExtensionUsage() {
			for _, old := range r.childrenWith(target, kw) {
				r.removeChild(target, old)
			}
		}
		copied := r.copyTree(ch, target, r.at(target).ns, r.at(target).augmenting, make(map[int]int))
		r.at(copied).addedByUses = r.at(target).addedByUses
		r.at(target).children = append(r.at(target).children, copied)
	}
}

func (r *reactor) applyAugment(i int) (string, error) {
	target, reason, err := r.resolveAbsolute(i)
	if err != nil || reason != "" {
		return reason, err
	}
	r.moveAugmentChildren(i, target)
	return "", nil
}

// moveAugmentChildren reparents the data nodes and uses of an augment into
// its target.
func (r *reactor) moveAugmentChildren(aug, target int) {
	a := r.at(aug)
	var moved []int
	kept := a.children[:0:0]
	for _, ch := range a.children {
		c := r.at(ch)
		if !dataKeywords[c.keyword] && c.keyword != "uses" {
			kept = append(kept, ch)
			continue
		}
		c.parent = target
		c.augmenting = true
		if c.addedBy < 0 {
			c.addedBy = aug
		}
		moved = append(moved, ch)
	}
	a.children = kept
	a.target = target
	a.introduced = append(a.introduced, moved...)
	a.resolved = true
	r.at(target).children = append(r.at(target).children, moved...)
}

type pathStep struct {
	module *unit
	name   string
}

func (r *reactor) parsePath(i int, path string) ([]pathStep, error) {
	c := r.at(i)
	var steps []pathStep
	for _, raw := range strings.Split(strings.TrimSpace(path), "/") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		step := pathStep{module: c.unit.module, name: raw}
		if pfx, local, ok := strings.Cut(raw, ":"); ok {
			target, known := c.unit.prefixes[pfx]
			if !known {
				return nil, r.sourceError(i, "unknown prefix %q in path %s", pfx, path)
			}
			step = pathStep{module: target, name: local}
		}
		steps = append(steps, step)
	}
	if len(steps) == 0 {
		return nil, r.sourceError(i, "empty schema node path")
	}
	return steps, nil
}

func (r *reactor) findChild(candidates []int, step pathStep) int {
	for _, k := range candidates {
		c := r.at(k)
		if dataKeywords[c.keyword] && c.ns == step.module && c.name() == step.name {
			return k
		}
	}
	return -1
}

// walkSteps follows steps from the first matching candidate. A missing step
// is reported as a reason so the caller retries in a later pass.
func (r *reactor) walkSteps(first []int, steps []pathStep, path string) (int, string) {
	cur := r.findChild(first, steps[0])
	for k := 1; cur >= 0 && k < len(steps); k++ {
		next := r.findChild(r.at(cur).children, steps[k])
		if next < 0 {
			return -1, fmt.Sprintf("target %s not found at step %s", path, steps[k].name)
		}
		cur = next
	}
	if cur < 0 {
		return -1, fmt.Sprintf("target %s not found at step %s", path, steps[0].name)
	}
	return cur, ""
}

func (r *reactor) resolveDescendant(usesIdx, stmt int) (int, string, error) {
	path := r.at(stmt).arg
	if strings.HasPrefix(strings.TrimSpace(path), "/") {
		return -1, "", r.sourceError(stmt, "%s path %s must be relative", r.at(stmt).keyword, path)
	}
	steps, err := r.parsePath(stmt, path)
	if err != nil {
		return -1, "", err
	}
	target, reason := r.walkSteps(r.at(usesIdx).introduced, steps, path)
	return target, reason, nil
}

func (r *reactor) resolveAbsolute(i int) (int, string, error) {
	path := r.at(i).arg
	if !strings.HasPrefix(strings.TrimSpace(path), "/") {
		return -1, "", r.sourceError(i, "augment path %s must be absolute", path)
	}
	steps, err := r.parsePath(i, path)
	if err != nil {
		return -1, "", err
	}
	var first []int
	for _, root := range steps[0].module.roots() {
		first = append(first, r.at(root).children...)
	}
	target, reason := r.walkSteps(first, steps, path)
	return target, reason, nil
}
