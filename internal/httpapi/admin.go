package httpapi

import (
	"crypto/subtle"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/jobdeck/jobdeck/core/logger"
)

// AdminConfig maps the admin basic-auth credentials to environment
// variables. The password is configured as a bcrypt hash, never in the
// clear.
type AdminConfig struct {
	Username     string `env:"ADMIN_USERNAME,required"`
	PasswordHash string `env:"ADMIN_PASSWORD_BCRYPT_HASH,required"`
}

// AdminGuard protects the administrative routes with HTTP basic auth.
// Username comparison is constant-time and the password check is bcrypt,
// whose cost dominates timing either way.
type AdminGuard struct {
	username     string
	passwordHash []byte
}

// NewAdminGuard validates the configured hash eagerly so a typo in the
// env var fails at startup, not on the first admin request.
func NewAdminGuard(cfg AdminConfig) (*AdminGuard, error) {
	if cfg.Username == "" || cfg.PasswordHash == "" {
		return nil, fmt.Errorf("httpapi: admin username and password hash are required")
	}
	if _, err := bcrypt.Cost([]byte(cfg.PasswordHash)); err != nil {
		return nil, fmt.Errorf("httpapi: invalid admin password hash: %w", err)
	}
	return &AdminGuard{
		username:     cfg.Username,
		passwordHash: []byte(cfg.PasswordHash),
	}, nil
}

// Require wraps next with the basic-auth check.
func (ag *AdminGuard) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || !ag.authenticate(user, pass) {
			w.Header().Set("WWW-Authenticate", `Basic realm="admin", charset="UTF-8"`)
			writeError(w, http.StatusUnauthorized, "unauthorized", "admin credentials required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (ag *AdminGuard) authenticate(user, pass string) bool {
	userOK := subtle.ConstantTimeCompare([]byte(user), []byte(ag.username)) == 1
	passOK := bcrypt.CompareHashAndPassword(ag.passwordHash, []byte(pass)) == nil
	return userOK && passOK
}

type lockoutView struct {
	Username string    `json:"username"`
	LockedAt time.Time `json:"locked_at"`
	Reason   string    `json:"reason"`
}

// handleListLockouts returns every currently locked account, newest first.
func (h *Handler) handleListLockouts(w http.ResponseWriter, r *http.Request) {
	lockouts, err := h.authGate.ActiveLockouts(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "storage_unavailable", "could not list lockouts")
		return
	}

	views := make([]lockoutView, 0, len(lockouts))
	for _, lock := range lockouts {
		views = append(views, lockoutView{
			Username: lock.Username,
			LockedAt: lock.LockedAt,
			Reason:   lock.Reason,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"lockouts": views})
}

// handleUnlock closes the lock and clears the failure history for the
// account in the path.
func (h *Handler) handleUnlock(w http.ResponseWriter, r *http.Request) {
	username := r.PathValue("username")
	if username == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "username is required")
		return
	}

	if err := h.authGate.Unlock(r.Context(), username); err != nil {
		writeError(w, http.StatusServiceUnavailable, "storage_unavailable", "could not unlock account")
		return
	}
	h.logger.InfoContext(r.Context(), "account unlocked by admin", logger.Username(username))
	writeJSON(w, http.StatusOK, map[string]string{
		"status":   "unlocked",
		"username": username,
	})
}

// handleAttemptCounts reports the recent-window and all-time failure
// counts for one account.
func (h *Handler) handleAttemptCounts(w http.ResponseWriter, r *http.Request) {
	username := r.PathValue("username")
	if username == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "username is required")
		return
	}

	recent, total, err := h.authGate.AttemptCounts(r.Context(), username)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "storage_unavailable", "could not read attempt counts")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"username":        username,
		"recent_failures": recent,
		"total_failures":  total,
	})
}
