package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"

	"github.com/CrowderSoup/planner/services"
	"github.com/CrowderSoup/planner/tasks"
)

// Users resolves sign-in emails to owner ids.
type Users interface {
	EnsureUser(ctx context.Context, email string) (string, error)
}

// AuthHandler handles authentication-related endpoints
type AuthHandler struct {
	authService *services.AuthService
	users       Users
}

func NewAuthHandler(authService *services.AuthService, users Users) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		users:       users,
	}
}

// Login sends a magic link to the email in the request body.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, tasks.Errorf(tasks.ValidationFailed, "login", "invalid request format"))
		return
	}

	email := strings.TrimSpace(req.Email)
	if email == "" || !strings.Contains(email, "@") {
		writeError(w, tasks.Errorf(tasks.ValidationFailed, "login", "invalid email address"))
		return
	}

	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	baseURL := fmt.Sprintf("%s://%s", scheme, r.Host)

	magicLink, err := h.authService.GenerateMagicLink(email, baseURL)
	if err != nil {
		log.Printf("Error generating magic link: %v", err)
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "success",
		"message":   "Magic link has been sent",
		"magicLink": magicLink, // For development only
	})
}

// HandleMagicLink exchanges a magic link token for a session token and
// redirects to the frontend with it.
func (h *AuthHandler) HandleMagicLink(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		writeError(w, tasks.Errorf(tasks.ValidationFailed, "magic link", "missing token"))
		return
	}

	email, err := h.authService.VerifyMagicLinkToken(token)
	if err != nil {
		writeError(w, tasks.Errorf(tasks.Unauthorized, "magic link", "invalid or expired token"))
		return
	}

	ownerID, err := h.users.EnsureUser(r.Context(), email)
	if err != nil {
		writeError(w, err)
		return
	}

	jwtToken, err := h.authService.CreateJWT(ownerID, email)
	if err != nil {
		writeError(w, err)
		return
	}

	redirect := url.Values{"token": {jwtToken}, "email": {email}}
	http.Redirect(w, r, "/?"+redirect.Encode(), http.StatusFound)
}

// VerifyToken reports the identity behind a valid session token. It runs
// behind AuthMiddleware.
func (h *AuthHandler) VerifyToken(w http.ResponseWriter, r *http.Request) {
	ownerID, err := tasks.RequireOwner(r.Context(), "verify")
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"email":   emailFrom(r.Context()),
		"ownerId": ownerID,
		"status":  "valid",
	})
}
