// Package source defines how schema documents are named and represented.
package source

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// Revision is a YYYY-MM-DD date. The empty Revision means "no revision".
type Revision string

var revisionPattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// ParseRevision validates s. An empty string yields the empty revision.
func ParseRevision(s string) (Revision, error) {
	if s == "" {
		return "", nil
	}
	if !revisionPattern.MatchString(s) {
		return "", fmt.Errorf("invalid revision %q: expected YYYY-MM-DD", s)
	}
	return Revision(s), nil
}

func (r Revision) IsZero() bool { return r == "" }

// Compare orders revisions chronologically. The empty revision sorts first.
func (r Revision) Compare(o Revision) int {
	return strings.Compare(string(r), string(o))
}

// SourceIdentifier names a schema document.
type SourceIdentifier struct {
	Name     string
	Revision Revision
	SemVer   *semver.Version
}

func NewIdentifier(name string, revision Revision) SourceIdentifier {
	return SourceIdentifier{Name: name, Revision: revision}
}

// WithSemVer returns a copy of id carrying v.
func (id SourceIdentifier) WithSemVer(v *semver.Version) SourceIdentifier {
	id.SemVer = v
	return id
}

// Key is the registry and cache key: name, plus "@revision" when present.
func (id SourceIdentifier) Key() string {
	if id.Revision.IsZero() {
		return id.Name
	}
	return id.Name + "@" + string(id.Revision)
}

func (id SourceIdentifier) String() string {
	if id.SemVer != nil {
		return fmt.Sprintf("%s#%s", id.Key(), id.SemVer.Original())
	}
	return id.Key()
}

// Equal compares name and revision; semantic versions only count when both
// sides carry one.
func (id SourceIdentifier) Equal(o SourceIdentifier) bool {
	if id.Name != o.Name || id.Revision != o.Revision {
		return false
	}
	if id.SemVer != nil && o.SemVer != nil {
		return id.SemVer.Equal(o.SemVer)
	}
	return true
}

var defaultSemVer = semver.MustParse("0.0.0")

// EffectiveSemVer returns the semantic version, defaulting to 0.0.0.
func (id SourceIdentifier) EffectiveSemVer() *semver.Version {
	if id.SemVer == nil {
		return defaultSemVer
	}
	return id.SemVer
}

// Compare orders by name, then revision, then semantic version. Like Equal,
// it only looks at semantic versions when both sides carry one, so Compare
// returns 0 exactly when Equal is true.
func (id SourceIdentifier) Compare(o SourceIdentifier) int {
	if c := strings.Compare(id.Name, o.Name); c != 0 {
		return c
	}
	if c := id.Revision.Compare(o.Revision); c != 0 {
		return c
	}
	if id.SemVer != nil && o.SemVer != nil {
		return id.SemVer.Compare(o.SemVer)
	}
	return 0
}

// Matches reports whether a concrete identifier satisfies a request. A request
// without a revision matches any revision of the same name.
func (id SourceIdentifier) Matches(concrete SourceIdentifier) bool {
	if id.Name != concrete.Name {
		return false
	}
	if !id.Revision.IsZero() && id.Revision != concrete.Revision {
		return false
	}
	if id.SemVer != nil && concrete.SemVer != nil && !id.SemVer.Equal(concrete.SemVer) {
		return false
	}
	return true
}

// ParseIdentifier accepts "name", "name@revision" and "name@revision#semver".
func ParseIdentifier(s string) (SourceIdentifier, error) {
	var id SourceIdentifier
	rest := s
	if i := strings.IndexByte(rest, '#'); i >= 0 {
		v, err := semver.NewVersion(rest[i+1:])
		if err != nil {
			return id, fmt.Errorf("invalid semantic version in %q: %w", s, err)
		}
		id.SemVer = v
		rest = rest[:i]
	}
	name, rev, _ := strings.Cut(rest, "@")
	if name == "" {
		return id, fmt.Errorf("invalid source identifier %q: empty name", s)
	}
	r, err := ParseRevision(rev)
	if err != nil {
		return id, err
	}
	id.Name = name
	id.Revision = r
	return id, nil
}
