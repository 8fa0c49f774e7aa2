// Package api implements HTTP handlers and helpers for the cab dispatch service.
package api

import (
    "net/http"
    "strings"

    "cabdispatch/internal/auth"
)

type Principal struct {
    Role    string // admin, employee, driver
    Subject string // employee or driver id
}

// getPrincipal resolves the caller.
// - A valid Authorization: Bearer token wins.
// - In dev mode, X-Role/X-User-Id headers are honoured and the role defaults to admin.
// - Otherwise the principal is empty and every role check fails.
func (s *Server) getPrincipal(r *http.Request) Principal {
    authz := r.Header.Get("Authorization")
    if strings.HasPrefix(strings.ToLower(authz), "bearer ") && s.Auth != nil {
        tok := strings.TrimSpace(authz[len("Bearer "):])
        if pr, err := s.Auth.Verify(tok); err == nil {
            return Principal{Role: pr.Role, Subject: pr.Subject}
        }
        return Principal{}
    }
    if s.Auth != nil && s.Auth.Mode != "dev" {
        return Principal{}
    }
    role := strings.ToLower(r.Header.Get("X-Role"))
    if role == "" {
        role = auth.RoleAdmin
    }
    return Principal{Role: role, Subject: r.Header.Get("X-User-Id")}
}

// IsAdmin reports whether the principal has the admin role.
func (p Principal) IsAdmin() bool { return p.Role == auth.RoleAdmin }

func (p Principal) Has(roles ...string) bool {
    for _, role := range roles {
        if p.Role == role { return true }
    }
    return false
}

// require writes 401 for anonymous callers and 403 for the wrong role.
func (s *Server) require(w http.ResponseWriter, r *http.Request, roles ...string) (Principal, bool) {
    p := s.getPrincipal(r)
    if p.Role == "" {
        writeProblem(w, http.StatusUnauthorized, "Unauthorized", "valid bearer token required", r.URL.Path)
        return p, false
    }
    if !p.Has(roles...) {
        writeProblem(w, http.StatusForbidden, "Forbidden", strings.Join(roles, " or ")+" required", r.URL.Path)
        return p, false
    }
    return p, true
}
