package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/CrowderSoup/planner/services"
	"github.com/CrowderSoup/planner/tasks"
)

type contextKey string

const emailContextKey contextKey = "email"

type AuthMiddleware struct {
	authService *services.AuthService
}

func NewAuthMiddleware(authService *services.AuthService) *AuthMiddleware {
	return &AuthMiddleware{
		authService: authService,
	}
}

// Auth verifies the session token and puts its owner into the request
// context. Websocket requests may pass the token as ?token= since browsers
// cannot set headers on them.
func (m *AuthMiddleware) Auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString, err := bearerToken(r)
		if err != nil {
			writeError(w, err)
			return
		}

		claims, err := m.authService.VerifyJWT(tokenString)
		if err != nil {
			writeError(w, tasks.Errorf(tasks.Unauthorized, "auth", "invalid token"))
			return
		}

		ctx := tasks.WithOwner(r.Context(), claims.Subject)
		ctx = context.WithValue(ctx, emailContextKey, claims.Email)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearerToken(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		if token := r.URL.Query().Get("token"); token != "" && websocketUpgrade(r) {
			return token, nil
		}
		return "", tasks.Errorf(tasks.Unauthorized, "auth", "missing authorization header")
	}

	authParts := strings.Split(authHeader, " ")
	if len(authParts) != 2 || authParts[0] != "Bearer" {
		return "", tasks.Errorf(tasks.Unauthorized, "auth", "invalid authorization format")
	}
	return authParts[1], nil
}

func websocketUpgrade(r *http.Request) bool {
	return strings.EqualFold(r.Header.Get("Upgrade"), "websocket")
}

func emailFrom(ctx context.Context) string {
	email, _ := ctx.Value(emailContextKey).(string)
	return email
}
