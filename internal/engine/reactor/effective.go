package reactor

import (
	"context"
	"strings"

	"yangkit/internal/engine/model"
)

type builder struct {
	r     *reactor
	nodes map[int]*model.SchemaNode
}

func (r *reactor) buildEffectiveModel(ctx context.Context) error {
	b := &builder{r: r, nodes: make(map[int]*model.SchemaNode)}
	var modules []*model.Module
	for _, u := range r.sortedModules() {
		if err := ctx.Err(); err != nil {
			return err
		}
		modules = append(modules, b.module(u))
	}
	r.result = model.NewSchemaContext(modules, r.pruned)
	return nil
}

func qnameModule(u *unit) model.QNameModule {
	return model.QNameModule{Namespace: u.namespace, Revision: u.ast.ID.Revision}
}

func (b *builder) module(u *unit) *model.Module {
	r := b.r
	m := &model.Module{
		Name:      u.name(),
		Namespace: u.namespace,
		Prefix:    u.prefix,
		Revision:  u.ast.ID.Revision,
		SemVer:    u.ast.ID.SemVer,
	}
	m.YangVersion, _ = r.argOf(u.root, "yang-version")
	if m.YangVersion == "" {
		m.YangVersion = "1"
	}
	m.Description, _ = r.argOf(u.root, "description")
	for _, imp := range u.imports {
		m.Imports = append(m.Imports, model.ModuleImport{
			ModuleName: imp.target.name(),
			Revision:   imp.target.ast.ID.Revision,
			SemVer:     imp.dep.SemVer,
			Prefix:     imp.dep.Prefix,
		})
	}
	for _, s := range u.submodules {
		m.Submodules = append(m.Submodules, s.name())
	}

	qm := qnameModule(u)
	for _, root := range u.roots() {
		for _, ch := range r.at(root).children {
			c := r.at(ch)
			if c.pruned {
				continue
			}
			switch {
			case dataKeywords[c.keyword]:
				m.Children = append(m.Children, b.node(ch))
			case c.keyword == "uses":
				m.Uses = append(m.Uses, b.uses(ch))
			case c.keyword == "augment":
				m.Augmentations = append(m.Augmentations, b.augmentation(ch))
			case c.keyword == "feature":
				if c.featureOn {
					desc, _ := r.argOf(ch, "description")
					m.Features = append(m.Features, model.Feature{QName: model.QName{Module: qm, Local: c.arg}, Description: desc})
				}
			case c.keyword == "extension":
				arg, _ := r.argOf(ch, "argument")
				m.Extensions = append(m.Extensions, model.Extension{QName: model.QName{Module: qm, Local: c.arg}, Argument: arg})
			case c.keyword == "grouping":
				m.Groupings = append(m.Groupings, model.Grouping{QName: model.QName{Module: qm, Local: c.arg}, Children: b.dataChildren(ch)})
			}
		}
	}
	return m
}

func (b *builder) dataChildren(i int) []*model.SchemaNode {
	var out []*model.SchemaNode
	for _, ch := range b.r.at(i).children {
		c := b.r.at(ch)
		if !c.pruned && dataKeywords[c.keyword] {
			out = append(out, b.node(ch))
		}
	}
	return out
}

// node freezes a statement once. Augmentations and the nodes they target
// share the same instances.
func (b *builder) node(i int) *model.SchemaNode {
	if n, ok := b.nodes[i]; ok {
		return n
	}
	r := b.r
	c := r.at(i)
	n := &model.SchemaNode{
		Kind:        model.NodeKind(c.keyword),
		QName:       model.QName{Module: qnameModule(c.ns), Local: c.name()},
		Path:        r.schemaPath(i),
		AddedByUses: c.addedByUses,
		Augmenting:  c.augmenting,
	}
	b.nodes[i] = n

	for _, ch := range c.children {
		sub := r.at(ch)
		if sub.pruned {
			continue
		}
		switch {
		case sub.isExtensionUsage():
			if sub.extension >= 0 {
				def := r.at(sub.extension)
				n.Extensions = append(n.Extensions, model.ExtensionUsage{
					Extension: model.QName{Module: qnameModule(def.unit.module), Local: def.arg},
					Argument:  sub.arg,
				})
			}
		case sub.keyword == "description":
			n.Description = sub.arg
		case sub.keyword == "type":
			n.Type = sub.arg
		case sub.keyword == "key":
			n.Keys = strings.Fields(sub.arg)
		case sub.keyword == "config":
			v := sub.arg == "true"
			n.Config = &v
		case sub.keyword == "mandatory":
			n.Mandatory = sub.arg == "true"
		case sub.keyword == "default":
			n.Default = sub.arg
		case sub.keyword == "uses":
			n.Uses = append(n.Uses, b.uses(ch))
		case dataKeywords[sub.keyword]:
			n.Children = append(n.Children, b.node(ch))
		}
	}
	return n
}

func (b *builder) uses(i int) *model.UsesNode {
	r := b.r
	c := r.at(i)
	u := &model.UsesNode{}
	if c.grouping >= 0 {
		g := r.at(c.grouping)
		u.Grouping = model.QName{Module: qnameModule(g.unit.module), Local: g.arg}
	}
	for _, ref := range r.childrenWith(i, "refine") {
		u.Refines = append(u.Refines, r.at(ref).arg)
	}
	for _, aug := range r.childrenWith(i, "augment") {
		if !r.at(aug).pruned {
			u.Augmentations = append(u.Augmentations, b.augmentation(aug))
		}
	}
	return u
}

func (b *builder) augmentation(i int) *model.AugmentationSchema {
	return &model.AugmentationSchema{
		TargetPath: b.r.at(i).arg,
		Children:   b.introducedData(i, make(map[int]bool)),
	}
}

// introducedData lists the surviving data nodes a uses or augment brought
// in, looking through nested uses.
func (b *builder) introducedData(i int, seen map[int]bool) []*model.SchemaNode {
	var out []*model.SchemaNode
	for _, k := range b.r.at(i).introduced {
		c := b.r.at(k)
		if seen[k] || c.pruned {
			continue
		}
		seen[k] = true
		switch {
		case dataKeywords[c.keyword]:
			out = append(out, b.node(k))
		case c.keyword == "uses":
			out = append(out, b.introducedData(k, seen)...)
		}
	}
	return out
}
