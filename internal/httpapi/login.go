package httpapi

import (
	"context"
	"math"
	"net/http"
	"strconv"

	"github.com/jobdeck/jobdeck/core/logger"
	"github.com/jobdeck/jobdeck/internal/authguard"
	"github.com/jobdeck/jobdeck/pkg/clientip"
)

// CredentialVerifier checks a username/password pair against the user
// store. It reports whether the credentials are valid; hashing and user
// lookup stay behind this seam.
type CredentialVerifier func(ctx context.Context, username, password string) (bool, error)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// handleLogin runs the protection state machine around the credential
// check: gate first, verify only when open, record the outcome after.
func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "malformed JSON body")
		return
	}
	if req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "username and password are required")
		return
	}

	ctx := r.Context()

	decision, err := h.authGate.CheckLoginAllowed(ctx, req.Username)
	if err != nil {
		// Fail closed: an unreachable tracker denies the attempt.
		writeError(w, http.StatusServiceUnavailable, "login_unavailable", decision.Reason)
		return
	}
	if !decision.Allowed {
		writeDenied(w, decision)
		return
	}

	valid, err := h.verifier(ctx, req.Username, req.Password)
	if err != nil {
		h.logger.ErrorContext(ctx, "credential verification failed",
			logger.Username(req.Username),
			logger.Error(err))
		writeError(w, http.StatusInternalServerError, "internal_error", "could not verify credentials")
		return
	}

	if !valid {
		if err := h.authGate.RecordFailure(ctx, req.Username, clientip.GetIP(r), r.UserAgent()); err != nil {
			h.logger.ErrorContext(ctx, "failed to record login failure",
				logger.Username(req.Username),
				logger.Error(err))
		}
		writeError(w, http.StatusUnauthorized, "invalid_credentials", "invalid username or password")
		return
	}

	if err := h.authGate.RecordSuccess(ctx, req.Username); err != nil {
		h.logger.ErrorContext(ctx, "failed to clear login history",
			logger.Username(req.Username),
			logger.Error(err))
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":   "ok",
		"username": req.Username,
	})
}

// writeDenied maps a denying gate decision onto the HTTP contract:
// 423 for locks (admin intervention required), 429 with wait_seconds for
// the self-expiring throttle.
func writeDenied(w http.ResponseWriter, decision authguard.Decision) {
	switch decision.State {
	case authguard.StateLocked:
		writeError(w, http.StatusLocked, "account_locked", decision.Reason)
	default:
		wait := int(math.Ceil(decision.Wait.Seconds()))
		w.Header().Set("Retry-After", strconv.Itoa(wait))
		writeJSON(w, http.StatusTooManyRequests, errorPayload{
			Error:       "too_many_attempts",
			Detail:      decision.Reason,
			WaitSeconds: wait,
		})
	}
}
