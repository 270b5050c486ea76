package orderservice

import (
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// RequireCapability guards mutating routes with an HS256 bearer token whose
// "caps" claim must list the capability. An empty secret disables the check,
// which is the local-development default.
func RequireCapability(secret, capability string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if secret == "" {
				next.ServeHTTP(w, r)
				return
			}

			raw := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
			if raw == "" || raw == r.Header.Get("Authorization") {
				writeError(w, http.StatusUnauthorized, "missing bearer token")
				return
			}

			token, err := jwt.Parse(raw, func(t *jwt.Token) (any, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, jwt.ErrSignatureInvalid
				}
				return []byte(secret), nil
			}, jwt.WithValidMethods([]string{"HS256"}))
			if err != nil || !token.Valid {
				writeError(w, http.StatusUnauthorized, "invalid token")
				return
			}

			claims, ok := token.Claims.(jwt.MapClaims)
			if !ok || !hasCapability(claims, capability) {
				writeError(w, http.StatusForbidden, "capability required: "+capability)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func hasCapability(claims jwt.MapClaims, capability string) bool {
	caps, ok := claims["caps"].([]any)
	if !ok {
		return false
	}
	for _, c := range caps {
		if s, ok := c.(string); ok && s == capability {
			return true
		}
	}
	return false
}
