// Package model holds the compiled, read-only schema produced by the reactor.
package model

import (
	"fmt"

	"yangkit/internal/engine/source"
)

// QNameModule identifies the namespace a name lives in.
type QNameModule struct {
	Namespace string
	Revision  source.Revision
}

func (m QNameModule) String() string {
	if m.Revision.IsZero() {
		return m.Namespace
	}
	return fmt.Sprintf("%s?revision=%s", m.Namespace, m.Revision)
}

// QName is a namespace-qualified name.
type QName struct {
	Module QNameModule
	Local  string
}

func NewQName(namespace string, revision source.Revision, local string) QName {
	return QName{Module: QNameModule{Namespace: namespace, Revision: revision}, Local: local}
}

func (q QName) String() string {
	return fmt.Sprintf("(%s)%s", q.Module, q.Local)
}

// WithModule returns q moved into another namespace.
func (q QName) WithModule(m QNameModule) QName {
	q.Module = m
	return q
}

// FeatureSet decides which features are supported. A nil FeatureSet supports
// every feature.
type FeatureSet func(QName) bool

// Supports evaluates the set, treating nil as "all features".
func (fs FeatureSet) Supports(q QName) bool {
	if fs == nil {
		return true
	}
	return fs(q)
}

// AllFeatures supports every feature.
func AllFeatures() FeatureSet { return nil }

// NoFeatures supports none.
func NoFeatures() FeatureSet { return func(QName) bool { return false } }

// FeaturesOf supports exactly the listed features.
func FeaturesOf(features ...QName) FeatureSet {
	set := make(map[QName]struct{}, len(features))
	for _, f := range features {
		set[f] = struct{}{}
	}
	return func(q QName) bool {
		_, ok := set[q]
		return ok
	}
}

// FeaturesNamed supports features by "module:feature" or bare local name,
// which is convenient for configuration files and command lines.
func FeaturesNamed(moduleOf func(QNameModule) string, names ...string) FeatureSet {
	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		set[n] = struct{}{}
	}
	return func(q QName) bool {
		if _, ok := set[q.Local]; ok {
			return true
		}
		if moduleOf == nil {
			return false
		}
		_, ok := set[moduleOf(q.Module)+":"+q.Local]
		return ok
	}
}
