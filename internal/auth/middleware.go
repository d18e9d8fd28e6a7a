package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/obelisk-core/obelisk/internal/api"
	"github.com/obelisk-core/obelisk/internal/failure"
)

type contextKey string

const UserClaimsKey contextKey = "user_claims"

// Middleware requires a valid bearer token. A nil manager disables
// authentication and lets every request through.
func Middleware(mgr *JWTManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if mgr == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				api.HandleError(w, api.ErrUnauthorized)
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
				api.HandleError(w, api.ErrUnauthorized)
				return
			}

			claims, err := mgr.ValidateAccessToken(parts[1])
			if err != nil {
				api.HandleError(w, api.ErrInvalidToken)
				return
			}

			ctx := context.WithValue(r.Context(), UserClaimsKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func GetUserClaims(ctx context.Context) *AccessClaims {
	claims, _ := ctx.Value(UserClaimsKey).(*AccessClaims)
	return claims
}

// ResolveUserID reconciles a user id named by the request with the
// authenticated caller. Without authentication the requested id is used
// as is; with it, an empty request defaults to the caller and any other
// user is forbidden.
func ResolveUserID(ctx context.Context, requested string) (string, error) {
	claims := GetUserClaims(ctx)
	if claims == nil {
		return requested, nil
	}
	if requested == "" || requested == claims.UserID {
		return claims.UserID, nil
	}
	return "", failure.New(failure.KindForbidden, "auth.ResolveUserID", "access to another user's data is forbidden")
}
