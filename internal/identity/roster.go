package identity

import (
	"slices"
)

// Roster is a read-only label to identity projection built once per
// session from the sample store.
type Roster struct {
	byLabel map[int]Identity
}

// NewRoster builds a roster. When the same label appears more than once the
// first identity wins and the duplicates are returned for reporting.
func NewRoster(ids []Identity) (*Roster, []Identity) {
	r := &Roster{byLabel: make(map[int]Identity, len(ids))}
	var duplicates []Identity
	for _, id := range ids {
		if _, ok := r.byLabel[id.Label]; ok {
			duplicates = append(duplicates, id)
			continue
		}
		r.byLabel[id.Label] = id
	}
	return r, duplicates
}

// Lookup returns the identity for a label.
func (r *Roster) Lookup(label int) (Identity, bool) {
	if r == nil {
		return Identity{}, false
	}
	id, ok := r.byLabel[label]
	return id, ok
}

// Name returns the display name for a label, or "" if the label is unknown.
func (r *Roster) Name(label int) string {
	id, _ := r.Lookup(label)
	return id.Name
}

// Len returns the number of identities.
func (r *Roster) Len() int {
	if r == nil {
		return 0
	}
	return len(r.byLabel)
}

// Identities returns all identities sorted by label.
func (r *Roster) Identities() []Identity {
	if r == nil {
		return nil
	}
	ids := make([]Identity, 0, len(r.byLabel))
	for _, id := range r.byLabel {
		ids = append(ids, id)
	}
	slices.SortFunc(ids, func(a, b Identity) int { return a.Label - b.Label })
	return ids
}

// NextLabel returns the smallest label greater than every enrolled label.
func (r *Roster) NextLabel() int {
	next := 0
	if r == nil {
		return next
	}
	for label := range r.byLabel {
		if label >= next {
			next = label + 1
		}
	}
	return next
}

// FindByName returns identities whose normalized name contains the
// normalized query.
func (r *Roster) FindByName(query string) []Identity {
	var found []Identity
	for _, id := range r.Identities() {
		if MatchesName(id.Name, query) {
			found = append(found, id)
		}
	}
	return found
}
