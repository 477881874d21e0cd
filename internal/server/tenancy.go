package server

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/dpatel76/SynapseDTE2-sub001/pkg/authz"
)

// withTenancy resolves the caller identity from the X-Tenant-ID and X-Role
// headers. A gateway in front of this service is expected to have
// authenticated the caller and set both headers; requests without a tenant
// are rejected before any handler runs.
func withTenancy(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isUnscopedPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		tenantID := strings.TrimSpace(r.Header.Get("X-Tenant-ID"))
		if tenantID == "" {
			writeServerError(w, http.StatusUnauthorized, "tenant_required", "X-Tenant-ID header is required")
			return
		}

		roleSlug := strings.TrimSpace(strings.ToLower(r.Header.Get("X-Role")))
		if roleSlug == "" {
			roleSlug = authz.RoleAnonymous
		}

		ctx := withPrincipal(r.Context(), Principal{TenantID: tenantID, RoleSlug: roleSlug})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func isUnscopedPath(path string) bool {
	switch path {
	case "/health", "/healthz", "/metrics":
		return true
	default:
		return false
	}
}

func writeServerError(w http.ResponseWriter, status int, code string, message string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"code": code, "message": message})
}
