package relations

// GroupKind tells which field set a group harmonizes.
type GroupKind string

const (
	GroupSeries   GroupKind = "series"
	GroupAuthor   GroupKind = "author"
	GroupNarrator GroupKind = "narrator"
)

// Group is a set of records joined by active relationships.
type Group struct {
	Key        string    `json:"key"`
	Kind       GroupKind `json:"kind"`
	RecordIDs  []string  `json:"record_ids"`
	Confidence float64   `json:"confidence"`
	// Identity is set for author and narrator groups.
	Identity *Identity `json:"identity,omitempty"`
	// Label is the human form of the key (series name or canonical name).
	Label string `json:"label,omitempty"`
}

// Contains reports whether id is a member.
func (g Group) Contains(id string) bool {
	for _, member := range g.RecordIDs {
		if member == id {
			return true
		}
	}
	return false
}
