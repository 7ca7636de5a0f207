package controller

import (
	"net/http"

	"github.com/go-jose/go-jose/v4/json"
	"github.com/gorilla/mux"
	"github.com/orca-so/sedimentology/app/admin/controller/types"
	admintypes "github.com/orca-so/sedimentology/app/admin/types"
	"github.com/orca-so/sedimentology/pkg/utils"
	"go.uber.org/zap"
)

const (
	roleAdmin  = "admin"
	roleViewer = "viewer"
)

type Controller struct {
	App        *admintypes.App
	AdminToken string
	AuthUser   string
	Users      map[string]types.User
	JWTSecret  []byte
	// AllowedOrigins may open the websocket in addition to the API's own origin.
	AllowedOrigins []string
}

// NewController returns a new controller.
func NewController(app *admintypes.App) *Controller {
	adminToken := utils.Env("ADMIN_TOKEN", "devtoken")
	adminUser := utils.Env("ADMIN_USER", "admin")
	adminUsersJSON := utils.Env("ADMIN_USERS", "")
	adminPass := utils.Env("ADMIN_PASSWORD", "admin")
	jwtSecret := []byte(utils.Env("SESSION_SECRET", "change-me-please"))

	users := map[string]types.User{}
	if phash, err := utils.HashOrRead(adminPass); err == nil {
		users[adminUser] = types.User{Username: adminUser, Hash: phash, Role: roleAdmin}
	} else {
		app.Logger.Error("Unable to hash ADMIN_PASSWORD", zap.Error(err))
	}
	if adminUsersJSON != "" {
		extra, err := parseUsers(adminUsersJSON)
		if err != nil {
			app.Logger.Error("Ignoring ADMIN_USERS", zap.Error(err))
		}
		for name, u := range extra {
			users[name] = u
		}
	}

	return &Controller{
		App:        app,
		AdminToken: adminToken,
		AuthUser:   adminUser,
		Users:      users,
		JWTSecret:  jwtSecret,

		AllowedOrigins: utils.EnvList("ADMIN_ALLOWED_ORIGINS", nil),
	}
}

// parseUsers reads ADMIN_USERS, a JSON object of username to
// {"password": ..., "role": ...}. The role defaults to viewer.
func parseUsers(raw string) (map[string]types.User, error) {
	var cfg map[string]types.UserConfig
	if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
		return nil, err
	}
	users := make(map[string]types.User, len(cfg))
	for name, uc := range cfg {
		hash, err := utils.HashOrRead(uc.Password)
		if err != nil {
			return nil, err
		}
		role := uc.Role
		if role == "" {
			role = roleViewer
		}
		users[name] = types.User{Username: name, Hash: hash, Role: role}
	}
	return users, nil
}

// WithCORS is a middleware that adds CORS headers to the response.
func WithCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")

		// Echo back the origin to allow credentials
		if origin != "" {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
		} else {
			w.Header().Set("Access-Control-Allow-Origin", "*")
		}
		w.Header().Set("Vary", "Origin")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Allow-Methods", http.MethodGet+", "+http.MethodPost+", "+http.MethodPatch+", "+http.MethodOptions)

		// Fast-path the preflight
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// NewRouter returns a new router with all the routes defined in this file.
func (c *Controller) NewRouter() (*mux.Router, error) {
	r := mux.NewRouter()

	r.Handle("/api/health", http.HandlerFunc(c.HandleHealth)).Methods(http.MethodGet)

	r.HandleFunc("/api/auth/login", c.HandleAdminLogin).Methods(http.MethodPost)
	r.HandleFunc("/api/auth/logout", c.HandleAdminLogout).Methods(http.MethodPost)

	r.Handle("/api/status", c.RequireAuth(http.HandlerFunc(c.HandleStatus))).Methods(http.MethodGet)

	r.Handle("/api/slots", c.RequireAuth(http.HandlerFunc(c.HandleLatestSlots))).Methods(http.MethodGet)
	r.Handle("/api/slots/{slot:[0-9]+}", c.RequireAuth(http.HandlerFunc(c.HandleSlot))).Methods(http.MethodGet)
	r.Handle("/api/queue", c.RequireAuth(http.HandlerFunc(c.HandleQueue))).Methods(http.MethodGet)

	r.Handle("/api/backfill", c.RequireAuth(http.HandlerFunc(c.HandleBackfillList))).Methods(http.MethodGet)
	r.Handle("/api/backfill", c.RequireAdmin(http.HandlerFunc(c.HandleBackfillCreate))).Methods(http.MethodPost)
	r.Handle("/api/backfill/{maxBlockHeight:[0-9]+}", c.RequireAdmin(http.HandlerFunc(c.HandleBackfillPatch))).Methods(http.MethodPatch)

	r.Handle("/api/checkpoint", c.RequireAdmin(http.HandlerFunc(c.HandleCheckpointSweep))).Methods(http.MethodPost)

	// WebSocket endpoint for real-time slot events
	r.Handle("/api/ws", c.RequireAuth(http.HandlerFunc(c.HandleWebSocket))).Methods(http.MethodGet)

	return r, nil
}

// writeJSON writes a JSON response
func (c *Controller) writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes an error response
func (c *Controller) writeError(w http.ResponseWriter, statusCode int, message string) {
	c.writeJSON(w, statusCode, map[string]string{"error": message})
}
