// Package auth implements the two authentication modes fixed by spec §9:
// (a) a shared API key with the tenant identified by the X-Tenant-ID header
// or path, and (b) signed tenant-access tokens issued by the external
// tenant registry. Context-key plumbing follows the teacher's
// internal/identity package.
package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

type contextKey int

const (
	tenantIDKey contextKey = iota
	permissionsKey
)

// TenantIDFromContext extracts the authenticated tenant id, empty if none.
func TenantIDFromContext(ctx context.Context) string {
	v, _ := ctx.Value(tenantIDKey).(string)
	return v
}

// PermissionsFromContext extracts the authenticated token's permissions.
func PermissionsFromContext(ctx context.Context) []string {
	v, _ := ctx.Value(permissionsKey).([]string)
	return v
}

// tenantAccessClaims is the signed-token shape fixed by spec §9: {tenantId,
// permissions, type:"tenant_access"}.
type tenantAccessClaims struct {
	jwt.RegisteredClaims
	TenantID    string   `json:"tenantId"`
	Permissions []string `json:"permissions"`
	Type        string   `json:"type"`
}

// Config configures the Middleware.
type Config struct {
	APIKey       string // shared key for mode (a); empty disables mode (a)
	JWTSecret    string // signing secret for mode (b); empty disables mode (b)
	RequireAuth  bool
	PathTenantID func(*http.Request) string
}

// Middleware authenticates the request under either supported mode and
// stashes the tenant id (and permissions, for mode b) on the context.
// When RequireAuth is set, a request that authenticates under neither mode
// is rejected with a 401 UNAUTHORIZED envelope and never reaches next.
func Middleware(cfg Config) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !cfg.RequireAuth {
				ctx := context.WithValue(r.Context(), tenantIDKey, cfg.PathTenantID(r))
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			tenantID, permissions, ok := authenticate(r, cfg)
			if !ok {
				writeUnauthorized(w)
				return
			}

			ctx := context.WithValue(r.Context(), tenantIDKey, tenantID)
			ctx = context.WithValue(ctx, permissionsKey, permissions)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func authenticate(r *http.Request, cfg Config) (tenantID string, permissions []string, ok bool) {
	token := bearerToken(r)
	if token == "" {
		return "", nil, false
	}

	// Mode (a): shared API key. Tenant is taken from X-Tenant-ID header or path.
	if cfg.APIKey != "" && token == cfg.APIKey {
		tenantID = r.Header.Get("X-Tenant-ID")
		if tenantID == "" && cfg.PathTenantID != nil {
			tenantID = cfg.PathTenantID(r)
		}
		if tenantID == "" {
			return "", nil, false
		}
		return tenantID, nil, true
	}

	// Mode (b): signed tenant-access token.
	if cfg.JWTSecret != "" {
		claims := &tenantAccessClaims{}
		parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
			if _, isHMAC := t.Method.(*jwt.SigningMethodHMAC); !isHMAC {
				return nil, jwt.ErrTokenSignatureInvalid
			}
			return []byte(cfg.JWTSecret), nil
		})
		if err == nil && parsed.Valid && claims.Type == "tenant_access" && claims.TenantID != "" {
			return claims.TenantID, claims.Permissions, true
		}
	}

	return "", nil, false
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(h, prefix) {
		return ""
	}
	return strings.TrimPrefix(h, prefix)
}

func writeUnauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"success":false,"error":"UNAUTHORIZED","message":"missing or invalid credentials"}`))
}

// RequireTenantMatch rejects a request whose authenticated tenant id
// doesn't match the path tenant id, mapping to FORBIDDEN per spec §7. This
// covers mode (b) tokens and mode (a) requests whose X-Tenant-ID header
// names another tenant; a blank authenticated tenant id is let through.
func RequireTenantMatch(pathTenantID func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authTenant := TenantIDFromContext(r.Context())
			if authTenant != "" && authTenant != pathTenantID(r) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusForbidden)
				_, _ = w.Write([]byte(`{"success":false,"error":"FORBIDDEN","message":"tenant mismatch"}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
