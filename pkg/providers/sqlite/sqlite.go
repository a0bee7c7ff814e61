// Package sqlite provides a SQL-backed implementation of the provider
// capabilities, using an embedded SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite" // database/sql driver

	gherr "github.com/gatehouse-dev/gatehouse/pkg/errors"
	"github.com/gatehouse-dev/gatehouse/pkg/permissions"
	"github.com/gatehouse-dev/gatehouse/pkg/providers"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

// Provider implements UserProvider, PermissionProvider and OAuth2UserStore
// on top of a SQLite database.
type Provider struct {
	db *sql.DB
}

// Open opens (creating if necessary) the database at the given DSN and runs
// the embedded migrations. Use ":memory:" for an ephemeral database.
func Open(ctx context.Context, dsn string) (*Provider, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to sqlite database: %w", err)
	}

	goose.SetBaseFS(embedMigrations)
	if err := goose.SetDialect("sqlite3"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to set migration dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Provider{db: db}, nil
}

// Close closes the underlying database.
func (p *Provider) Close() error {
	return p.db.Close()
}

// GetByPrincipalID returns the user with the given principal id.
func (p *Provider) GetByPrincipalID(ctx context.Context, principalID string) (*providers.User, error) {
	row := p.db.QueryRowContext(ctx,
		`SELECT principal_id, name, password_hash, access_token FROM users WHERE principal_id = ?`,
		principalID,
	)

	var user providers.User
	err := row.Scan(&user.PrincipalID, &user.Name, &user.PasswordHash, &user.AccessToken)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, gherr.NewNotFoundError(fmt.Sprintf("no user with principal id %q", principalID), nil)
	case err != nil:
		return nil, gherr.NewProviderBackendError("failed to query user", err)
	}
	return &user, nil
}

// GetUserPermissions returns the permissions granted directly to the user.
func (p *Provider) GetUserPermissions(ctx context.Context, user *providers.User) (permissions.Set, error) {
	return p.queryPermissions(ctx,
		`SELECT permission FROM user_permissions WHERE principal_id = ?`,
		user.PrincipalID,
	)
}

// GetGroupPermissions returns the permissions granted through group
// memberships.
func (p *Provider) GetGroupPermissions(ctx context.Context, user *providers.User) (permissions.Set, error) {
	return p.queryPermissions(ctx,
		`SELECT gp.permission
		   FROM group_permissions gp
		   JOIN group_members gm ON gm.group_name = gp.group_name
		  WHERE gm.principal_id = ?`,
		user.PrincipalID,
	)
}

func (p *Provider) queryPermissions(ctx context.Context, query string, args ...any) (permissions.Set, error) {
	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, gherr.NewProviderBackendError("failed to query permissions", err)
	}
	defer rows.Close()

	var perms []permissions.Permission
	for rows.Next() {
		var p permissions.Permission
		if err := rows.Scan(&p); err != nil {
			return nil, gherr.NewProviderBackendError("failed to scan permission", err)
		}
		perms = append(perms, p)
	}
	if err := rows.Err(); err != nil {
		return nil, gherr.NewProviderBackendError("failed to iterate permissions", err)
	}
	return permissions.NewHashSet(perms...), nil
}

// UpdateAccessToken stores the access token for the given principal and
// returns the updated user. The single UPDATE makes the write atomic with
// respect to concurrent lookups.
func (p *Provider) UpdateAccessToken(ctx context.Context, principalID, token string) (*providers.User, error) {
	res, err := p.db.ExecContext(ctx,
		`UPDATE users SET access_token = ? WHERE principal_id = ?`,
		token, principalID,
	)
	if err != nil {
		return nil, gherr.NewProviderBackendError("failed to update access token", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, gherr.NewProviderBackendError("failed to update access token", err)
	}
	if affected == 0 {
		return nil, gherr.NewNotFoundError(fmt.Sprintf("no user with principal id %q", principalID), nil)
	}
	return p.GetByPrincipalID(ctx, principalID)
}

// AddUser seeds a user record.
func (p *Provider) AddUser(ctx context.Context, user *providers.User) error {
	if user == nil || user.PrincipalID == "" {
		return fmt.Errorf("user must have a principal id")
	}
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO users (principal_id, name, password_hash, access_token) VALUES (?, ?, ?, ?)`,
		user.PrincipalID, user.Name, user.PasswordHash, user.AccessToken,
	)
	if err != nil {
		return gherr.NewProviderBackendError("failed to insert user", err)
	}
	return nil
}

// GrantUser grants permissions directly to a user.
func (p *Provider) GrantUser(ctx context.Context, principalID string, perms ...permissions.Permission) error {
	for _, perm := range perms {
		_, err := p.db.ExecContext(ctx,
			`INSERT OR IGNORE INTO user_permissions (principal_id, permission) VALUES (?, ?)`,
			principalID, perm,
		)
		if err != nil {
			return gherr.NewProviderBackendError("failed to grant permission", err)
		}
	}
	return nil
}

// AddGroup seeds a group with the permissions it grants.
func (p *Provider) AddGroup(ctx context.Context, name string, perms ...permissions.Permission) error {
	for _, perm := range perms {
		_, err := p.db.ExecContext(ctx,
			`INSERT OR IGNORE INTO group_permissions (group_name, permission) VALUES (?, ?)`,
			name, perm,
		)
		if err != nil {
			return gherr.NewProviderBackendError("failed to add group permission", err)
		}
	}
	return nil
}

// AssignGroup adds a user to a group.
func (p *Provider) AssignGroup(ctx context.Context, principalID, group string) error {
	_, err := p.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO group_members (principal_id, group_name) VALUES (?, ?)`,
		principalID, group,
	)
	if err != nil {
		return gherr.NewProviderBackendError("failed to assign group", err)
	}
	return nil
}

// Compile-time interface compliance checks
var (
	_ providers.UserProvider       = (*Provider)(nil)
	_ providers.PermissionProvider = (*Provider)(nil)
	_ providers.OAuth2UserStore    = (*Provider)(nil)
)
