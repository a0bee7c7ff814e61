package providers

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/gatehouse-dev/gatehouse/pkg/errors"
	"github.com/gatehouse-dev/gatehouse/pkg/permissions"
)

// MemoryProvider implements UserProvider, PermissionProvider and
// OAuth2UserStore with in-memory maps. It is thread-safe and suitable for
// tests and small single-process deployments.
//
// The tables are guarded with a readers-writer discipline: lookups take the
// read lock, seeding and per-user access-token updates take the write lock,
// so readers always see a consistent snapshot.
type MemoryProvider struct {
	mu sync.RWMutex

	// users maps principal id -> User.
	users map[string]*User

	// userPerms maps principal id -> directly granted permissions.
	userPerms map[string]*permissions.HashSet

	// groups maps group name -> permissions granted through the group.
	groups map[string]*permissions.HashSet

	// memberships maps principal id -> group names.
	memberships map[string][]string
}

// NewMemoryProvider creates an empty in-memory provider.
func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{
		users:       make(map[string]*User),
		userPerms:   make(map[string]*permissions.HashSet),
		groups:      make(map[string]*permissions.HashSet),
		memberships: make(map[string][]string),
	}
}

// AddUser seeds a user. It fails on empty principal ids and duplicates.
func (m *MemoryProvider) AddUser(user *User) error {
	if user == nil || user.PrincipalID == "" {
		return fmt.Errorf("user must have a principal id")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.users[user.PrincipalID]; exists {
		return fmt.Errorf("user %q already exists", user.PrincipalID)
	}
	m.users[user.PrincipalID] = user.Clone()
	return nil
}

// GrantUser grants permissions directly to a user.
func (m *MemoryProvider) GrantUser(principalID string, perms ...permissions.Permission) {
	m.mu.Lock()
	defer m.mu.Unlock()

	set, ok := m.userPerms[principalID]
	if !ok {
		set = permissions.NewHashSet()
		m.userPerms[principalID] = set
	}
	m.userPerms[principalID] = set.Union(permissions.NewHashSet(perms...)).(*permissions.HashSet)
}

// AddGroup seeds a group with the permissions it grants.
func (m *MemoryProvider) AddGroup(name string, perms ...permissions.Permission) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.groups[name] = permissions.NewHashSet(perms...)
}

// AssignGroup adds a user to a group.
func (m *MemoryProvider) AssignGroup(principalID, group string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if slices.Contains(m.memberships[principalID], group) {
		return
	}
	m.memberships[principalID] = append(m.memberships[principalID], group)
}

// GetByPrincipalID returns the user with the given principal id.
func (m *MemoryProvider) GetByPrincipalID(ctx context.Context, principalID string) (*User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	user, ok := m.users[principalID]
	if !ok {
		return nil, errors.NewNotFoundError(fmt.Sprintf("no user with principal id %q", principalID), nil)
	}
	return user.Clone(), nil
}

// GetUserPermissions returns the permissions granted directly to the user.
func (m *MemoryProvider) GetUserPermissions(ctx context.Context, user *User) (permissions.Set, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	set, ok := m.userPerms[user.PrincipalID]
	if !ok {
		return permissions.NewHashSet(), nil
	}
	return permissions.NewHashSet(set.Permissions()...), nil
}

// GetGroupPermissions returns the permissions granted through group
// memberships.
func (m *MemoryProvider) GetGroupPermissions(ctx context.Context, user *User) (permissions.Set, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var merged permissions.Set = permissions.NewHashSet()
	for _, group := range m.memberships[user.PrincipalID] {
		if set, ok := m.groups[group]; ok {
			merged = merged.Union(set)
		}
	}
	return merged, nil
}

// UpdateAccessToken stores the access token for the given principal and
// returns the updated user. The write lock makes the update atomic with
// respect to concurrent lookups.
func (m *MemoryProvider) UpdateAccessToken(ctx context.Context, principalID, token string) (*User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	user, ok := m.users[principalID]
	if !ok {
		return nil, errors.NewNotFoundError(fmt.Sprintf("no user with principal id %q", principalID), nil)
	}
	user.AccessToken = token
	return user.Clone(), nil
}

// Stats contains statistics about the provider contents. Useful in tests.
type Stats struct {
	Users  int
	Groups int
}

// Stats returns current statistics about the provider contents.
func (m *MemoryProvider) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return Stats{
		Users:  len(m.users),
		Groups: len(m.groups),
	}
}

// Compile-time interface compliance checks
var (
	_ UserProvider       = (*MemoryProvider)(nil)
	_ PermissionProvider = (*MemoryProvider)(nil)
	_ OAuth2UserStore    = (*MemoryProvider)(nil)
)
