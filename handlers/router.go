package handlers

import (
	"net/http"
	"path"
	"strings"

	"github.com/gorilla/mux"

	"github.com/CrowderSoup/planner/services"
	"github.com/CrowderSoup/planner/store"
)

// Deps are the collaborators behind the HTTP surface.
type Deps struct {
	Auth  *services.AuthService
	Users Users
	Tasks store.Repository
	Hub   *services.Hub
	// StaticDir holds web assets served at / when set. Dotfiles and
	// database or config files in it are never served.
	StaticDir string
}

// NewRouter wires every endpoint. Task, verify and websocket routes require
// a session token.
func NewRouter(d Deps) *mux.Router {
	authHandler := NewAuthHandler(d.Auth, d.Users)
	taskHandler := NewTaskHandler(d.Tasks, d.Hub)
	wsHandler := NewWebSocketHandler(d.Hub)
	authMiddleware := NewAuthMiddleware(d.Auth)

	r := mux.NewRouter()

	// Auth routes
	r.HandleFunc("/api/auth/login", authHandler.Login).Methods(http.MethodPost)
	r.HandleFunc("/api/auth/magic-link", authHandler.HandleMagicLink).Methods(http.MethodGet)
	r.HandleFunc("/api/colors", Colors).Methods(http.MethodGet)

	// Protected routes
	api := r.PathPrefix("/api").Subrouter()
	api.Use(authMiddleware.Auth)
	api.HandleFunc("/auth/verify", authHandler.VerifyToken).Methods(http.MethodGet)
	api.HandleFunc("/tasks", taskHandler.List).Methods(http.MethodGet)
	api.HandleFunc("/tasks", taskHandler.Create).Methods(http.MethodPost)
	api.HandleFunc("/tasks", taskHandler.Update).Methods(http.MethodPut)
	api.HandleFunc("/tasks", taskHandler.Delete).Methods(http.MethodDelete)
	api.HandleFunc("/tasks/completions", taskHandler.SetCompletion).Methods(http.MethodPut)
	api.HandleFunc("/ws", wsHandler.HandleWebSocket)

	if d.StaticDir != "" {
		r.PathPrefix("/").Handler(staticFiles(d.StaticDir))
	}
	return r
}

var privateSuffixes = []string{".db", ".db-journal", ".db-wal", ".db-shm", ".sqlite", ".sqlite3", ".toml", ".env"}

// staticFiles serves dir, answering 404 for anything that is not a plain
// web asset.
func staticFiles(dir string) http.Handler {
	files := http.FileServer(http.Dir(dir))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !servable(r.URL.Path) {
			http.NotFound(w, r)
			return
		}
		files.ServeHTTP(w, r)
	})
}

func servable(p string) bool {
	for _, seg := range strings.Split(path.Clean("/"+p), "/") {
		if strings.HasPrefix(seg, ".") {
			return false
		}
	}
	lower := strings.ToLower(p)
	for _, suffix := range privateSuffixes {
		if strings.HasSuffix(lower, suffix) {
			return false
		}
	}
	return true
}
