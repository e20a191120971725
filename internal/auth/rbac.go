package auth

import (
	"net/http"
	"slices"
)

type Permission string

const (
	PermProjectsRead   Permission = "projects:read"
	PermProjectsWrite  Permission = "projects:write"
	PermPromptsRead    Permission = "prompts:read"
	PermPromptsWrite   Permission = "prompts:write"
	PermRunsExecute    Permission = "runs:execute"
	PermRunsRead       Permission = "runs:read"
	PermProvidersRead  Permission = "providers:read"
	PermProvidersWrite Permission = "providers:write"
	PermSettingsManage Permission = "settings:manage"
	PermWildcard       Permission = "*"
)

var rolePermissions = map[string][]Permission{
	"admin": {PermWildcard},
	"editor": {
		PermProjectsRead, PermProjectsWrite,
		PermPromptsRead, PermPromptsWrite,
		PermRunsExecute, PermRunsRead,
		PermProvidersRead,
	},
	"viewer": {PermProjectsRead, PermPromptsRead, PermRunsRead, PermProvidersRead},
}

type RBAC struct {
	enabled bool
}

// NewRBAC enforces permissions only when authentication is enabled.
func NewRBAC(jwt *JWTMiddleware) *RBAC {
	return &RBAC{enabled: jwt.Enabled()}
}

func (r *RBAC) RequirePermission(perm Permission) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !r.enabled {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			claims := ClaimsFromContext(req.Context())
			if claims == nil {
				writeError(w, http.StatusForbidden, "no claims in context")
				return
			}
			if !HasPermission(claims, perm) {
				writeError(w, http.StatusForbidden, "insufficient permissions")
				return
			}
			next.ServeHTTP(w, req)
		})
	}
}

// HasPermission checks explicit permission claims first, then the role's
// defaults.
func HasPermission(c *Claims, perm Permission) bool {
	granted := rolePermissions[c.Role]
	for _, p := range c.Permissions {
		granted = append(granted, Permission(p))
	}
	return slices.Contains(granted, PermWildcard) || slices.Contains(granted, perm)
}
