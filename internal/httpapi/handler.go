package httpapi

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/jobdeck/jobdeck/core/logger"
	"github.com/jobdeck/jobdeck/internal/authguard"
)

// ResumeImporter is the seam to the resume-processing collaborator. The
// handler owns admission control only; parsing and storage live behind
// this function.
type ResumeImporter func(ctx context.Context, r *http.Request) error

// Handler owns the HTTP surface: the login seam, the admin lockout
// surface, health probes, and the guarded upload seam.
type Handler struct {
	authGate *authguard.Gate
	verifier CredentialVerifier
	importer ResumeImporter
	probes   map[string]func(context.Context) error
	logger   *slog.Logger
}

// HandlerOption configures a Handler.
type HandlerOption func(*Handler)

// WithResumeImporter wires the resume upload collaborator. Without it the
// upload route answers 501.
func WithResumeImporter(importer ResumeImporter) HandlerOption {
	return func(h *Handler) {
		h.importer = importer
	}
}

// WithReadinessProbe registers a named dependency check for /readyz.
func WithReadinessProbe(name string, probe func(context.Context) error) HandlerOption {
	return func(h *Handler) {
		if probe != nil {
			h.probes[name] = probe
		}
	}
}

// WithHandlerLogger sets the request logger.
func WithHandlerLogger(log *slog.Logger) HandlerOption {
	return func(h *Handler) {
		if log != nil {
			h.logger = log
		}
	}
}

// NewHandler creates the HTTP surface over the login gate and the
// credential verifier seam.
func NewHandler(authGate *authguard.Gate, verifier CredentialVerifier, opts ...HandlerOption) (*Handler, error) {
	if authGate == nil {
		return nil, fmt.Errorf("httpapi: auth gate is required")
	}
	if verifier == nil {
		return nil, fmt.Errorf("httpapi: credential verifier is required")
	}

	h := &Handler{
		authGate: authGate,
		verifier: verifier,
		probes:   make(map[string]func(context.Context) error),
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

// Routes mounts the API on a fresh mux. admin guards the administrative
// routes; uploadGuard wraps the resume import seam with its stricter
// per-operation limit. Either may be nil in tests.
func (h *Handler) Routes(admin *AdminGuard, uploadGuard func(http.Handler) http.Handler) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/auth/login", h.handleLogin)

	mux.HandleFunc("GET /healthz", h.handleHealthz)
	mux.HandleFunc("GET /readyz", h.handleReadyz)

	adminWrap := func(next http.HandlerFunc) http.Handler {
		if admin == nil {
			return next
		}
		return admin.Require(next)
	}
	mux.Handle("GET /api/admin/lockouts", adminWrap(h.handleListLockouts))
	mux.Handle("POST /api/admin/lockouts/{username}/unlock", adminWrap(h.handleUnlock))
	mux.Handle("GET /api/admin/login-attempts/{username}", adminWrap(h.handleAttemptCounts))

	var importHandler http.Handler = http.HandlerFunc(h.handleResumeImport)
	if uploadGuard != nil {
		importHandler = uploadGuard(importHandler)
	}
	mux.Handle("POST /api/resumes/import", importHandler)

	return mux
}

// handleResumeImport hands the request to the import collaborator once it
// clears the per-operation limiter.
func (h *Handler) handleResumeImport(w http.ResponseWriter, r *http.Request) {
	if h.importer == nil {
		writeError(w, http.StatusNotImplemented, "not_implemented", "resume import is not configured")
		return
	}
	if err := h.importer(r.Context(), r); err != nil {
		h.logger.ErrorContext(r.Context(), "resume import failed", logger.Error(err))
		writeError(w, http.StatusInternalServerError, "import_failed", "could not import resume")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}
