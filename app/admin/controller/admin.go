package controller

import (
	"net/http"
	"time"

	"github.com/go-jose/go-jose/v4/json"
	"github.com/orca-so/sedimentology/app/admin/controller/types"
	"github.com/orca-so/sedimentology/pkg/utils"
	"go.uber.org/zap"
)

// HandleAdminLogin handles admin login
func (c *Controller) HandleAdminLogin(w http.ResponseWriter, r *http.Request) {
	var in types.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		c.writeError(w, http.StatusBadRequest, "bad json")
		return
	}
	u, ok := c.Users[in.Username]
	if !ok || !utils.CheckPassword(u.Hash, in.Password) {
		c.App.Logger.Info("Rejected admin login", zap.String("user", in.Username))
		c.writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	if err := c.IssueSession(w, u.Username, u.Role); err != nil {
		c.App.Logger.Error("Failed to sign session", zap.Error(err))
		c.writeError(w, http.StatusInternalServerError, "session unavailable")
		return
	}
	c.writeJSON(w, http.StatusOK, map[string]string{"ok": "1", "role": u.Role})
}

// HandleAdminLogout handles admin logout
func (c *Controller) HandleAdminLogout(w http.ResponseWriter, _ *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
	})
	w.WriteHeader(http.StatusNoContent)
}
