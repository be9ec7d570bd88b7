// Package rest exposes the portal's HTTP JSON surface.
package rest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	apperrors "github.com/apacbi/budgetportal/internal/platform/errors"
	"github.com/apacbi/budgetportal/internal/services/portal/lock"
	"github.com/apacbi/budgetportal/internal/services/portal/publish"
	"github.com/apacbi/budgetportal/internal/services/portal/session"
	"github.com/apacbi/budgetportal/internal/services/portal/storage"
)

// Config carries the collaborators the HTTP layer dispatches to.
type Config struct {
	Store       storage.RecordStore
	Sessions    *session.Gate
	Locks       *lock.PartitionLocks
	Coordinator *publish.Coordinator

	// Validator backs the health endpoint; nil reports disconnected.
	Validator publish.Validator

	// Reader hydrates empty partitions from the BI dataset when
	// HydrateOnMiss is set. Off by default.
	Reader        publish.Reader
	HydrateOnMiss bool
}

// Handler serves the portal's routes.
type Handler struct {
	store       storage.RecordStore
	sessions    *session.Gate
	locks       *lock.PartitionLocks
	coordinator *publish.Coordinator

	validator     publish.Validator
	reader        publish.Reader
	hydrateOnMiss bool

	now func() time.Time
}

// New validates required collaborators and returns a handler.
func New(cfg Config) (*Handler, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("record store is required")
	}
	if cfg.Sessions == nil {
		return nil, fmt.Errorf("session gate is required")
	}
	if cfg.Locks == nil {
		return nil, fmt.Errorf("partition locks are required")
	}
	if cfg.Coordinator == nil {
		return nil, fmt.Errorf("publish coordinator is required")
	}
	if cfg.HydrateOnMiss && cfg.Reader == nil {
		return nil, fmt.Errorf("hydration requires a dataset reader")
	}
	return &Handler{
		store:         cfg.Store,
		sessions:      cfg.Sessions,
		locks:         cfg.Locks,
		coordinator:   cfg.Coordinator,
		validator:     cfg.Validator,
		reader:        cfg.Reader,
		hydrateOnMiss: cfg.HydrateOnMiss,
		now:           time.Now,
	}, nil
}

// Routes builds the route table and wraps it with request tracing.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /data", h.handleAllData)
	mux.HandleFunc("POST /api/login", h.handleLogin)
	mux.HandleFunc("GET /api/data/{user_id}/{business_unit}", h.handlePartitionData)
	mux.HandleFunc("POST /api/update", h.requireSession(h.handleUpdate))
	mux.HandleFunc("POST /api/submit", h.requireSession(h.handleSubmit))
	mux.HandleFunc("GET /api/health", h.handleHealth)
	mux.HandleFunc("GET /api/submission-status/{user_id}/{business_unit}", h.handleSubmissionStatus)
	return otelhttp.NewHandler(mux, "portal.http")
}

type identityKey struct{}

// requireSession gates a route on a valid bearer token and attaches the
// caller identity to the request context.
func (h *Handler) requireSession(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		bearer := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		identity, err := h.sessions.Validate(r.Context(), bearer)
		if err != nil {
			h.respondError(w, err)
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), identityKey{}, identity)))
	}
}

// callerIdentity returns the identity attached by requireSession.
func callerIdentity(ctx context.Context) (session.Identity, bool) {
	identity, ok := ctx.Value(identityKey{}).(session.Identity)
	return identity, ok
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("encode response: %v", err)
	}
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	code := apperrors.CodeOf(err)
	status := code.HTTPStatus()
	if status >= http.StatusInternalServerError {
		log.Printf("request failed: %v", err)
	}
	respondJSON(w, status, map[string]any{
		"success": false,
		"error":   publicMessage(err),
	})
}

// publicMessage strips wrapped causes from storage-level failures so internal
// detail stays out of response bodies.
func publicMessage(err error) string {
	var coded *apperrors.Error
	if errors.As(err, &coded) {
		return coded.Message
	}
	return "internal error"
}

func decodeBody(r *http.Request, into any) error {
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(into); err != nil {
		return apperrors.Wrap(apperrors.CodeValidation, "invalid request body", err)
	}
	return nil
}
