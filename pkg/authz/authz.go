// Package authz provides permission-based authorization on top of the
// authentication core. It is deliberately small: a request either carries an
// authenticated user whose effective permissions cover the route's required
// set, or it does not pass.
package authz

import (
	"encoding/json"
	"net/http"

	"github.com/gatehouse-dev/gatehouse/pkg/auth"
	"github.com/gatehouse-dev/gatehouse/pkg/logger"
	"github.com/gatehouse-dev/gatehouse/pkg/permissions"
	"github.com/gatehouse-dev/gatehouse/pkg/providers"
)

// deniedResponse is the JSON body of a 403.
type deniedResponse struct {
	Error   string   `json:"error"`
	Missing []string `json:"missing"`
}

// Middleware creates an HTTP middleware that requires the authenticated user
// to hold every permission in required. Permissions granted directly and
// through group memberships both count.
//
// It must run behind the authentication middleware: a request without a user
// in its context is rejected with 401 rather than challenged again.
func Middleware(required permissions.Set, perms providers.PermissionProvider) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := auth.UserFromContext(r.Context())
			if !ok {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			effective, err := EffectivePermissions(r, perms, user)
			if err != nil {
				logger.Errorw("failed to resolve permissions",
					"principal_id", user.PrincipalID, "error", err)
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				return
			}

			result := effective.VerifyRequired(required)
			if !result.AllPresent() {
				missing := result.MissingNames()
				logger.Infow("permission denied",
					"principal_id", user.PrincipalID, "path", r.URL.Path, "missing", missing)
				writeDenied(w, missing)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// EffectivePermissions resolves the union of the user's direct and
// group-granted permissions.
func EffectivePermissions(r *http.Request, perms providers.PermissionProvider, user *providers.User) (permissions.Set, error) {
	direct, err := perms.GetUserPermissions(r.Context(), user)
	if err != nil {
		return nil, err
	}
	grouped, err := perms.GetGroupPermissions(r.Context(), user)
	if err != nil {
		return nil, err
	}
	return direct.Union(grouped), nil
}

// writeDenied renders the 403 body listing the missing permissions.
func writeDenied(w http.ResponseWriter, missing []string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusForbidden)
	if err := json.NewEncoder(w).Encode(deniedResponse{
		Error:   "insufficient permissions",
		Missing: missing,
	}); err != nil {
		logger.Warnw("failed to encode authorization denial", "error", err)
	}
}
