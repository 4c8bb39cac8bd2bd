package model

import (
	"sort"

	"github.com/Masterminds/semver/v3"

	"yangkit/internal/engine/source"
)

// NodeKind is the statement that produced a schema node.
type NodeKind string

const (
	KindContainer    NodeKind = "container"
	KindList         NodeKind = "list"
	KindLeaf         NodeKind = "leaf"
	KindLeafList     NodeKind = "leaf-list"
	KindChoice       NodeKind = "choice"
	KindCase         NodeKind = "case"
	KindAnydata      NodeKind = "anydata"
	KindAnyxml       NodeKind = "anyxml"
	KindRPC          NodeKind = "rpc"
	KindAction       NodeKind = "action"
	KindNotification NodeKind = "notification"
	KindInput        NodeKind = "input"
	KindOutput       NodeKind = "output"
)

// ExtensionUsage is an instance of a user-defined extension statement.
type ExtensionUsage struct {
	Extension QName
	Argument  string
}

// SchemaNode is one node of the compiled data tree. Nodes are built once by
// the reactor and never modified afterwards.
type SchemaNode struct {
	Kind        NodeKind
	QName       QName
	Path        string
	Description string
	Type        string
	Keys        []string
	Config      *bool
	Mandatory   bool
	Default     string
	AddedByUses bool
	Augmenting  bool
	Extensions  []ExtensionUsage
	Uses        []*UsesNode
	Children    []*SchemaNode

	byName map[QName]*SchemaNode
}

// ChildNodes returns the node's children in declaration order.
func (n *SchemaNode) ChildNodes() []*SchemaNode { return n.Children }

// DataChildByName finds a direct child by qualified name.
func (n *SchemaNode) DataChildByName(q QName) (*SchemaNode, bool) {
	c, ok := n.byName[q]
	return c, ok
}

// ChildByLocalName finds a direct child by local name only.
func (n *SchemaNode) ChildByLocalName(local string) (*SchemaNode, bool) {
	return childByLocal(n.Children, local)
}

func (n *SchemaNode) IsAddedByUses() bool { return n.AddedByUses }
func (n *SchemaNode) IsAugmenting() bool  { return n.Augmenting }

// Index builds the child lookup tables for n and its subtree. The reactor
// calls it once after assembling the tree.
func (n *SchemaNode) Index() {
	n.byName = indexChildren(n.Children)
	for _, c := range n.Children {
		c.Index()
	}
	for _, u := range n.Uses {
		for _, a := range u.Augmentations {
			a.index()
		}
	}
}

func indexChildren(children []*SchemaNode) map[QName]*SchemaNode {
	m := make(map[QName]*SchemaNode, len(children))
	for _, c := range children {
		m[c.QName] = c
	}
	return m
}

func childByLocal(children []*SchemaNode, local string) (*SchemaNode, bool) {
	for _, c := range children {
		if c.QName.Local == local {
			return c, true
		}
	}
	return nil, false
}

// UsesNode records one "uses" of a grouping.
type UsesNode struct {
	Grouping      QName
	Refines       []string
	Augmentations []*AugmentationSchema
}

// AugmentationSchema is an augment statement and the nodes it contributed.
type AugmentationSchema struct {
	TargetPath string
	Children   []*SchemaNode

	byName map[QName]*SchemaNode
}

func (a *AugmentationSchema) ChildNodes() []*SchemaNode { return a.Children }

func (a *AugmentationSchema) DataChildByName(q QName) (*SchemaNode, bool) {
	if a.byName == nil {
		a.index()
	}
	c, ok := a.byName[q]
	return c, ok
}

func (a *AugmentationSchema) index() {
	a.byName = indexChildren(a.Children)
}

// Feature is a declared feature that survived gating.
type Feature struct {
	QName       QName
	Description string
}

// Extension is a declared extension.
type Extension struct {
	QName    QName
	Argument string
}

// Grouping is a declared grouping with its expanded children.
type Grouping struct {
	QName    QName
	Children []*SchemaNode
}

// ModuleImport describes an import statement as resolved.
type ModuleImport struct {
	ModuleName string
	Revision   source.Revision
	SemVer     *semver.Version
	Prefix     string
}

// EffectiveSemVer returns the requested semantic version or 0.0.0.
func (i ModuleImport) EffectiveSemVer() *semver.Version {
	return source.SourceIdentifier{SemVer: i.SemVer}.EffectiveSemVer()
}

// Module is a compiled module with its submodules merged in.
type Module struct {
	Name          string
	Namespace     string
	Prefix        string
	Revision      source.Revision
	SemVer        *semver.Version
	YangVersion   string
	Description   string
	Imports       []ModuleImport
	Submodules    []string
	Features      []Feature
	Extensions    []Extension
	Groupings     []Grouping
	Augmentations []*AugmentationSchema
	Uses          []*UsesNode
	Children      []*SchemaNode

	byName map[QName]*SchemaNode
}

// QNameModule returns the module's namespace and revision.
func (m *Module) QNameModule() QNameModule {
	return QNameModule{Namespace: m.Namespace, Revision: m.Revision}
}

func (m *Module) ChildNodes() []*SchemaNode { return m.Children }

func (m *Module) DataChildByName(q QName) (*SchemaNode, bool) {
	c, ok := m.byName[q]
	return c, ok
}

func (m *Module) ChildByLocalName(local string) (*SchemaNode, bool) {
	return childByLocal(m.Children, local)
}

// FeatureByName finds a supported feature by local name.
func (m *Module) FeatureByName(local string) (Feature, bool) {
	for _, f := range m.Features {
		if f.QName.Local == local {
			return f, true
		}
	}
	return Feature{}, false
}

// Index builds lookup tables for the module tree.
func (m *Module) Index() {
	m.byName = indexChildren(m.Children)
	for _, c := range m.Children {
		c.Index()
	}
	for _, a := range m.Augmentations {
		a.index()
	}
	for _, u := range m.Uses {
		for _, a := range u.Augmentations {
			a.index()
		}
	}
}

// SchemaContext is the result of a successful resolution.
type SchemaContext struct {
	modules []*Module
	byName  map[string][]*Module
	byNS    map[string]*Module
	pruned  []string
}

// NewSchemaContext indexes modules. Modules are ordered by name, then
// revision.
func NewSchemaContext(modules []*Module, pruned []string) *SchemaContext {
	sorted := make([]*Module, len(modules))
	copy(sorted, modules)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Name != sorted[j].Name {
			return sorted[i].Name < sorted[j].Name
		}
		return sorted[i].Revision.Compare(sorted[j].Revision) < 0
	})
	sc := &SchemaContext{
		modules: sorted,
		byName:  make(map[string][]*Module),
		byNS:    make(map[string]*Module),
		pruned:  append([]string(nil), pruned...),
	}
	for _, m := range sorted {
		m.Index()
		sc.byName[m.Name] = append(sc.byName[m.Name], m)
		if cur, ok := sc.byNS[m.Namespace]; !ok || m.Revision.Compare(cur.Revision) > 0 {
			sc.byNS[m.Namespace] = m
		}
	}
	return sc
}

// Modules returns every module in the context.
func (sc *SchemaContext) Modules() []*Module { return sc.modules }

// FindModule returns the module with name and revision. An empty revision
// selects the newest.
func (sc *SchemaContext) FindModule(name string, revision source.Revision) (*Module, bool) {
	candidates := sc.byName[name]
	if len(candidates) == 0 {
		return nil, false
	}
	if revision.IsZero() {
		return candidates[len(candidates)-1], true
	}
	for _, m := range candidates {
		if m.Revision == revision {
			return m, true
		}
	}
	return nil, false
}

// FindModuleByNamespace returns the newest module declaring namespace.
func (sc *SchemaContext) FindModuleByNamespace(namespace string) (*Module, bool) {
	m, ok := sc.byNS[namespace]
	return m, ok
}

// Pruned lists schema paths removed by feature gating.
func (sc *SchemaContext) Pruned() []string { return sc.pruned }
