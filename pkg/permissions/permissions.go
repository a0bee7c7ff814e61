// Package permissions implements the permission model used by the
// authorization middleware.
//
// A Permission is an atomic capability token. Sets of permissions come in two
// flavors behind the same Set contract: a bit-packed set, whose permissions
// are registered in a Space that assigns each token a bit position, and an
// ordinary hash-based set. The bit-packed flavor is the cheap one to carry
// around per request; the hash flavor is what provider implementations
// usually hand back.
package permissions

import (
	"errors"
	"fmt"
	"sort"
)

// Permission is an atomic capability token with value equality.
type Permission string

// ErrUnknownPermissionBit is returned when a bit-packed set carries a bit
// with no registered permission. This indicates an implementation bug and is
// treated as fatal by callers.
var ErrUnknownPermissionBit = errors.New("unknown permission bit")

// MaxSpaceSize is the number of distinct permissions a Space can hold,
// bounded by the word size of the bit-packed set.
const MaxSpaceSize = 64

// Set is the contract shared by both permission set flavors.
type Set interface {
	// Contains reports whether the set holds the given permission.
	Contains(p Permission) bool

	// IsEmpty reports whether the set holds no permissions.
	IsEmpty() bool

	// Union returns a new set holding the members of both sets.
	// Union is commutative and associative.
	Union(other Set) Set

	// VerifyRequired checks that every permission in required is present.
	// An empty required set is trivially satisfied.
	VerifyRequired(required Set) VerifyResult

	// Permissions returns the members of the set. No iteration-order
	// guarantee is part of the contract; see the concrete types.
	Permissions() []Permission
}

// VerifyResult is the outcome of Set.VerifyRequired: either all required
// permissions were present, or the missing subset.
type VerifyResult struct {
	missing Set
}

// AllPresent reports whether every required permission was present.
func (r VerifyResult) AllPresent() bool {
	return r.missing == nil || r.missing.IsEmpty()
}

// Missing returns the set of required permissions that were absent.
// It is empty when AllPresent is true.
func (r VerifyResult) Missing() Set {
	if r.missing == nil {
		return NewHashSet()
	}
	return r.missing
}

// MissingNames returns the missing permission names sorted for stable output.
func (r VerifyResult) MissingNames() []string {
	perms := r.Missing().Permissions()
	names := make([]string, 0, len(perms))
	for _, p := range perms {
		names = append(names, string(p))
	}
	sort.Strings(names)
	return names
}

// allPresent is the result used when nothing is missing.
func allPresent() VerifyResult {
	return VerifyResult{}
}

// Space registers an ordered universe of permissions and assigns each a
// stable bit position for the bit-packed set flavor.
type Space struct {
	perms []Permission
	index map[Permission]uint
}

// NewSpace creates a Space from the given permissions. Registration order
// determines bit positions. It fails on empty tokens, duplicates, or more
// than MaxSpaceSize permissions.
func NewSpace(perms ...Permission) (*Space, error) {
	if len(perms) > MaxSpaceSize {
		return nil, fmt.Errorf("permission space holds at most %d permissions, got %d", MaxSpaceSize, len(perms))
	}

	s := &Space{
		perms: make([]Permission, 0, len(perms)),
		index: make(map[Permission]uint, len(perms)),
	}
	for _, p := range perms {
		if p == "" {
			return nil, errors.New("permission token cannot be empty")
		}
		if _, dup := s.index[p]; dup {
			return nil, fmt.Errorf("duplicate permission %q", p)
		}
		s.index[p] = uint(len(s.perms))
		s.perms = append(s.perms, p)
	}
	return s, nil
}

// MustSpace is like NewSpace but panics on error. Intended for package-level
// permission universes that are fixed at compile time.
func MustSpace(perms ...Permission) *Space {
	s, err := NewSpace(perms...)
	if err != nil {
		panic(err)
	}
	return s
}

// Permissions returns the registered permissions in bit order.
func (s *Space) Permissions() []Permission {
	out := make([]Permission, len(s.perms))
	copy(out, s.perms)
	return out
}

// Size returns the number of registered permissions.
func (s *Space) Size() int {
	return len(s.perms)
}

// bit returns the bit position for p, if registered.
func (s *Space) bit(p Permission) (uint, bool) {
	i, ok := s.index[p]
	return i, ok
}

// permissionAt returns the permission registered at the given bit position.
func (s *Space) permissionAt(bit uint) (Permission, bool) {
	if int(bit) >= len(s.perms) {
		return "", false
	}
	return s.perms[bit], true
}
