package relations

import (
	"slices"
	"strings"

	"harmony/internal/textutil"
)

// UniverseConfidence is assigned to every same_universe relationship.
const UniverseConfidence = 0.85

var universeMarkers = []string{"saga", "cycle", "chronicles", "trilogy"}

var universeSeparators = []string{":", " - "}

// Universe is a parent-pointer tree over normalized series keys.
type Universe struct {
	parent map[string]string
}

// UniverseEdge links a series key to its parent.
type UniverseEdge struct {
	Child  string `json:"child"`
	Parent string `json:"parent"`
}

// NewUniverse returns an empty tree.
func NewUniverse() *Universe {
	return &Universe{parent: make(map[string]string)}
}

// Link records parent as the parent of child. A child keeps its first
// parent, and links that would form a cycle are refused.
func (u *Universe) Link(child, parent string) bool {
	if child == "" || parent == "" || child == parent {
		return false
	}
	if _, ok := u.parent[child]; ok {
		return false
	}
	if u.IsAncestor(child, parent) {
		return false
	}
	u.parent[child] = parent
	return true
}

// Parent returns the direct parent of key.
func (u *Universe) Parent(key string) (string, bool) {
	p, ok := u.parent[key]
	return p, ok
}

// Ancestors returns the chain above key, nearest first.
func (u *Universe) Ancestors(key string) []string {
	var out []string
	for {
		p, ok := u.parent[key]
		if !ok {
			return out
		}
		out = append(out, p)
		key = p
	}
}

// Root returns the top of key's chain, or key itself.
func (u *Universe) Root(key string) string {
	if chain := u.Ancestors(key); len(chain) > 0 {
		return chain[len(chain)-1]
	}
	return key
}

// IsAncestor reports whether ancestor is on key's chain (or equals key).
func (u *Universe) IsAncestor(ancestor, key string) bool {
	if ancestor == key {
		return true
	}
	return slices.Contains(u.Ancestors(key), ancestor)
}

// Related reports whether one key contains the other.
func (u *Universe) Related(a, b string) bool {
	return u.IsAncestor(a, b) || u.IsAncestor(b, a)
}

// hasChildren reports whether any key is linked under key.
func (u *Universe) hasChildren(key string) bool {
	for _, parent := range u.parent {
		if parent == key {
			return true
		}
	}
	return false
}

// Edges lists every link ordered by child key.
func (u *Universe) Edges() []UniverseEdge {
	out := make([]UniverseEdge, 0, len(u.parent))
	for child, parent := range u.parent {
		out = append(out, UniverseEdge{Child: child, Parent: parent})
	}
	slices.SortFunc(out, func(a, b UniverseEdge) int { return strings.Compare(a.Child, b.Child) })
	return out
}

// BuildUniverse derives the hierarchy from raw series names. "Parent: Child"
// and "Parent - Child" link the full name under its prefix; a series whose
// name carries a universe marker (saga, cycle, chronicles, trilogy) becomes
// the parent of every other series whose key extends it.
func BuildUniverse(seriesNames []string) *Universe {
	u := NewUniverse()

	names := slices.Clone(seriesNames)
	slices.Sort(names)
	names = slices.Compact(names)

	keys := make([]string, 0, len(names))
	for _, name := range names {
		key := textutil.Normalize(name)
		if key == "" {
			continue
		}
		keys = append(keys, key)
		if prefix, ok := splitUniversePrefix(name); ok {
			u.Link(key, prefix)
		}
	}
	slices.Sort(keys)
	keys = slices.Compact(keys)

	for _, parent := range keys {
		if !hasUniverseMarker(parent) {
			continue
		}
		for _, child := range keys {
			if strings.HasPrefix(child, parent+" ") {
				u.Link(child, parent)
			}
		}
	}
	return u
}

func splitUniversePrefix(name string) (string, bool) {
	for _, sep := range universeSeparators {
		if i := strings.Index(name, sep); i > 0 {
			prefix := textutil.Normalize(name[:i])
			rest := textutil.Normalize(name[i+len(sep):])
			if prefix != "" && rest != "" {
				return prefix, true
			}
		}
	}
	return "", false
}

func hasUniverseMarker(key string) bool {
	for _, token := range strings.Fields(key) {
		if slices.Contains(universeMarkers, token) {
			return true
		}
	}
	return false
}
