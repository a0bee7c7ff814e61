package permissions

import "sort"

// HashSet is the hash-based permission set flavor: an ordinary unordered set
// of tokens with no Space registration requirement.
type HashSet struct {
	members map[Permission]struct{}
}

// NewHashSet creates a hash-based set holding the given permissions.
func NewHashSet(perms ...Permission) *HashSet {
	s := &HashSet{members: make(map[Permission]struct{}, len(perms))}
	for _, p := range perms {
		s.members[p] = struct{}{}
	}
	return s
}

// Contains reports whether the set holds the given permission.
func (h *HashSet) Contains(p Permission) bool {
	_, ok := h.members[p]
	return ok
}

// IsEmpty reports whether the set holds no permissions.
func (h *HashSet) IsEmpty() bool {
	return len(h.members) == 0
}

// Union returns a new hash-based set holding the members of both sets.
func (h *HashSet) Union(other Set) Set {
	return hashUnion(h, other)
}

// VerifyRequired checks that every permission in required is present.
// The missing set is the set difference required \ self.
func (h *HashSet) VerifyRequired(required Set) VerifyResult {
	return verifyByMembership(h, required)
}

// Permissions returns the members sorted lexicographically. Sorting is a
// convenience for stable output, not part of the Set contract.
func (h *HashSet) Permissions() []Permission {
	out := make([]Permission, 0, len(h.members))
	for p := range h.members {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// hashUnion merges any two sets into a hash-based set.
func hashUnion(a, b Set) *HashSet {
	merged := NewHashSet(a.Permissions()...)
	for _, p := range b.Permissions() {
		merged.members[p] = struct{}{}
	}
	return merged
}

var _ Set = (*HashSet)(nil)
