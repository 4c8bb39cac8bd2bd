package source

import "strings"

// RepresentationType names a source format. Types form a family: "yang" is
// the parent of "yang/text" and "yang/ast".
type RepresentationType string

const (
	TypeYANG RepresentationType = "yang"
	TypeText RepresentationType = "yang/text"
	TypeAST  RepresentationType = "yang/ast"
)

// AssignableTo reports whether t satisfies a request for want.
func (t RepresentationType) AssignableTo(want RepresentationType) bool {
	return t == want || strings.HasPrefix(string(t), string(want)+"/")
}

// Reference provider costs. Lower is preferred.
const (
	CostImmediate   = 0
	CostComputation = 1
	CostLocalIO     = 4
	CostRemoteIO    = 8
)

// PotentialSource is a provider's promise to deliver Identifier as Type.
type PotentialSource struct {
	Identifier SourceIdentifier
	Type       RepresentationType
	Cost       int
}

// Representation is one concrete form of a source document.
type Representation interface {
	Identifier() SourceIdentifier
	Type() RepresentationType
}

// TextSource is raw YANG text.
type TextSource struct {
	ID      SourceIdentifier
	Origin  string
	Content []byte
}

func NewTextSource(id SourceIdentifier, origin string, content []byte) *TextSource {
	return &TextSource{ID: id, Origin: origin, Content: content}
}

func (s *TextSource) Identifier() SourceIdentifier { return s.ID }
func (s *TextSource) Type() RepresentationType     { return TypeText }

// SymbolicName is used in diagnostics.
func (s *TextSource) SymbolicName() string {
	if s.Origin != "" {
		return s.Origin
	}
	return s.ID.Key()
}
