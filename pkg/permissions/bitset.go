package permissions

import (
	"fmt"
	"math/bits"
)

// BitSet is the bit-packed permission set flavor. Each member permission maps
// to a distinct bit position in a single machine word, assigned by the Space
// the set was built from.
//
// Membership is a bit-AND, union is a bit-OR, and required-set verification
// is ((self & required) ^ required). Sets from the same Space never allocate
// during these operations.
type BitSet struct {
	space *Space
	bits  uint64
}

// NewBitSet builds a bit-packed set over the given permissions. Every
// permission must be registered in the Space.
func (s *Space) NewBitSet(perms ...Permission) (*BitSet, error) {
	set := &BitSet{space: s}
	for _, p := range perms {
		bit, ok := s.bit(p)
		if !ok {
			return nil, fmt.Errorf("permission %q is not registered in this space", p)
		}
		set.bits |= 1 << bit
	}
	return set, nil
}

// MustBitSet is like NewBitSet but panics on error. Intended for required
// permission sets that are fixed at route-setup time.
func (s *Space) MustBitSet(perms ...Permission) *BitSet {
	set, err := s.NewBitSet(perms...)
	if err != nil {
		panic(err)
	}
	return set
}

// Contains reports whether the set holds the given permission.
// Permissions outside the Space are never members.
func (b *BitSet) Contains(p Permission) bool {
	bit, ok := b.space.bit(p)
	if !ok {
		return false
	}
	return b.bits&(1<<bit) != 0
}

// IsEmpty reports whether the set holds no permissions.
func (b *BitSet) IsEmpty() bool {
	return b.bits == 0
}

// Union returns a new set holding the members of both sets. Two bit-packed
// sets from the same Space union in a single OR; anything else degrades to a
// hash-based union.
func (b *BitSet) Union(other Set) Set {
	if o, ok := other.(*BitSet); ok && o.space == b.space {
		return &BitSet{space: b.space, bits: b.bits | o.bits}
	}
	return hashUnion(b, other)
}

// VerifyRequired checks that every permission in required is present.
func (b *BitSet) VerifyRequired(required Set) VerifyResult {
	if r, ok := required.(*BitSet); ok && r.space == b.space {
		missing := (b.bits & r.bits) ^ r.bits
		if missing == 0 {
			return allPresent()
		}
		return VerifyResult{missing: &BitSet{space: b.space, bits: missing}}
	}
	return verifyByMembership(b, required)
}

// Permissions returns the members of the set in bit order, low to high.
// It panics only via programming error; an unregistered bit cannot be set
// through the public constructors.
func (b *BitSet) Permissions() []Permission {
	perms, err := b.decode()
	if err != nil {
		panic(err)
	}
	return perms
}

// HashSet converts the bit-packed set to the hash-based flavor, iterating set
// bits from low to high. A bit with no registered permission yields
// ErrUnknownPermissionBit.
func (b *BitSet) HashSet() (*HashSet, error) {
	perms, err := b.decode()
	if err != nil {
		return nil, err
	}
	return NewHashSet(perms...), nil
}

// decode maps each set bit back to its permission token.
func (b *BitSet) decode() ([]Permission, error) {
	perms := make([]Permission, 0, bits.OnesCount64(b.bits))
	remaining := b.bits
	for remaining != 0 {
		bit := uint(bits.TrailingZeros64(remaining))
		p, ok := b.space.permissionAt(bit)
		if !ok {
			return nil, fmt.Errorf("%w: bit %d", ErrUnknownPermissionBit, bit)
		}
		perms = append(perms, p)
		remaining &= remaining - 1
	}
	return perms, nil
}

// verifyByMembership is the flavor-agnostic verification path: walk the
// required set and collect absentees.
func verifyByMembership(s Set, required Set) VerifyResult {
	var missing []Permission
	for _, p := range required.Permissions() {
		if !s.Contains(p) {
			missing = append(missing, p)
		}
	}
	if len(missing) == 0 {
		return allPresent()
	}
	return VerifyResult{missing: NewHashSet(missing...)}
}

var _ Set = (*BitSet)(nil)
