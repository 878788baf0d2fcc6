package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/Rox-Lvmaohua/qrsignature/internal/http/response"
	"github.com/Rox-Lvmaohua/qrsignature/internal/security"
)

type contextKey string

const claimsContextKey contextKey = "sign_claims"

// RequireSignToken validates the one-time sign token carried as a bearer
// header or token query parameter and stashes its claims on the context.
func RequireSignToken(codec *security.SignTokenCodec) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := bearerToken(r)
			if raw == "" {
				raw = strings.TrimSpace(r.URL.Query().Get("token"))
			}
			if raw == "" {
				response.Error(w, r, http.StatusUnauthorized, "TOKEN_INVALID", "missing sign token", nil)
				return
			}

			claims, err := codec.Validate(raw)
			if err != nil {
				if errors.Is(err, security.ErrTokenExpired) {
					response.Error(w, r, http.StatusUnauthorized, "TOKEN_EXPIRED", "sign token expired", nil)
					return
				}
				response.Error(w, r, http.StatusUnauthorized, "TOKEN_INVALID", "invalid sign token", nil)
				return
			}

			ctx := context.WithValue(r.Context(), claimsContextKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func ClaimsFromContext(ctx context.Context) (*security.SignClaims, bool) {
	claims, ok := ctx.Value(claimsContextKey).(*security.SignClaims)
	return claims, ok && claims != nil
}

func bearerToken(r *http.Request) string {
	auth := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(auth) > len("bearer ") && strings.EqualFold(auth[:len("bearer ")], "bearer ") {
		return strings.TrimSpace(auth[len("bearer "):])
	}
	return ""
}
