// internal/classifier/rolemap.go
package classifier

import (
	"github.com/xkilldash9x/uiprobe-cli/api/schemas"
)

// RoleMap groups the candidates of one page by role. Each list keeps the
// order in which candidates were discovered.
type RoleMap map[schemas.Role][]schemas.ElementCandidate

// RoleGroup is one entry of a RoleMap in canonical order.
type RoleGroup struct {
	Role       schemas.Role               `json:"role"`
	Candidates []schemas.ElementCandidate `json:"candidates"`
}

// Roles returns the roles that have at least one candidate, in canonical order.
func (m RoleMap) Roles() []schemas.Role {
	var roles []schemas.Role
	for _, r := range schemas.CanonicalRoles {
		if len(m[r]) > 0 {
			roles = append(roles, r)
		}
	}
	return roles
}

// Groups flattens the map into canonical order, which is what callers print.
func (m RoleMap) Groups() []RoleGroup {
	groups := make([]RoleGroup, 0, len(m))
	for _, r := range m.Roles() {
		groups = append(groups, RoleGroup{Role: r, Candidates: m[r]})
	}
	return groups
}

// Total counts all candidates.
func (m RoleMap) Total() int {
	total := 0
	for _, list := range m {
		total += len(list)
	}
	return total
}

// Counts returns the number of candidates per role.
func (m RoleMap) Counts() map[schemas.Role]int {
	counts := make(map[schemas.Role]int, len(m))
	for r, list := range m {
		if len(list) > 0 {
			counts[r] = len(list)
		}
	}
	return counts
}

// Merge appends the candidates of other whose dedup key is not present yet
// and returns how many were added. m must not be nil.
func (m RoleMap) Merge(other RoleMap) int {
	seen := make(map[string]bool, m.Total())
	for _, list := range m {
		for _, c := range list {
			seen[c.DedupKey] = true
		}
	}

	added := 0
	for _, r := range other.Roles() {
		for _, c := range other[r] {
			if seen[c.DedupKey] {
				continue
			}
			seen[c.DedupKey] = true
			m[r] = append(m[r], c)
			added++
		}
	}
	return added
}
