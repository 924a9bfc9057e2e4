// Package identity resolves the calling user and role set for each request.
//
// Production deployments run behind IIS/Windows Integrated Auth, which
// surfaces the authenticated user in server environment variables. For local
// development the X-Remote-User / X-User-Roles headers can stand in when
// ALLOW_DEV_HEADERS is enabled. The engine trusts whatever the resolver
// produces; no credential verification happens here.
package identity

import (
	"net/http"
	"os"
	"slices"
	"strings"
)

// Identity is a resolved caller: user name plus role set.
type Identity struct {
	User  string
	Roles []string
}

// HasRole reports whether the identity holds the named role.
func (id Identity) HasRole(role string) bool {
	return slices.Contains(id.Roles, role)
}

// Resolver derives identities from trusted environment variables and,
// optionally, development headers.
type Resolver struct {
	AllowDevHeaders bool
	DefaultRoles    []string
}

// NewResolver builds a Resolver.
func NewResolver(allowDevHeaders bool, defaultRoles []string) *Resolver {
	return &Resolver{AllowDevHeaders: allowDevHeaders, DefaultRoles: defaultRoles}
}

// Resolve returns the identity for an inbound request.
func (r *Resolver) Resolve(req *http.Request) Identity {
	user := firstNonEmpty(
		os.Getenv("REMOTE_USER"),
		os.Getenv("LOGON_USER"),
		os.Getenv("AUTH_USER"),
	)

	roles := make([]string, 0, len(r.DefaultRoles))
	roles = append(roles, r.DefaultRoles...)
	roles = appendRoles(roles, strings.ReplaceAll(os.Getenv("REMOTE_GROUPS"), ";", ","))

	if r.AllowDevHeaders {
		if user == "" {
			user = req.Header.Get("X-Remote-User")
		}
		roles = appendRoles(roles, req.Header.Get("X-User-Roles"))
	}

	if user == "" {
		user = "anonymous"
	}
	return Identity{User: user, Roles: roles}
}

// System returns the identity used by background jobs.
func System(user string) Identity {
	return Identity{User: user, Roles: []string{"Admin"}}
}

func appendRoles(roles []string, csv string) []string {
	for _, part := range strings.Split(csv, ",") {
		role := strings.TrimSpace(part)
		if role != "" && !slices.Contains(roles, role) {
			roles = append(roles, role)
		}
	}
	return roles
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
