package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/noah-isme/billing-engine/internal/tenant"
)

// RequireTenant ensures a parseable tenant identifier exists in the request
// context before any engine operation runs. Every operation is tenant-scoped.
func RequireTenant(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := tenant.From(r.Context())
		if !ok {
			writeTenantError(w, "TENANT_REQUIRED", "tenant is required")
			return
		}
		if _, err := uuid.Parse(id); err != nil {
			writeTenantError(w, "TENANT_INVALID", "tenant identifier is invalid")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeTenantError(w http.ResponseWriter, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)
	_, _ = w.Write([]byte(`{"error":{"code":"` + code + `","message":"` + message + `"}}`))
}
