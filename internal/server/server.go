// Package server exposes the listing lifecycle over HTTP for webhook
// callers. JSON in and out, CORS-open; mutating routes require the shared
// secret header.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"indexsync/internal/domain"
	"indexsync/internal/service"
)

// HeaderSecret carries the caller's shared secret.
const HeaderSecret = "X-Webhook-Secret"

// ListingManager is the lifecycle surface the handlers drive.
type ListingManager interface {
	Create(ctx context.Context, req *service.CreateRequest) (*domain.Listing, error)
	Edit(ctx context.Context, req *service.EditRequest) (*domain.Listing, error)
	Delete(ctx context.Context, id string) error
	ExpireOne(ctx context.Context, id string) error
	Sweep(ctx context.Context) ([]string, error)
}

type Server struct {
	listings ListingManager
	secret   string
	logger   *slog.Logger
}

func New(listings ListingManager, secret string, logger *slog.Logger) *Server {
	return &Server{
		listings: listings,
		secret:   secret,
		logger:   logger.With("component", "server"),
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleRoot)
	mux.HandleFunc("/submit", s.handleSubmit)
	mux.HandleFunc("/edit", s.handleEdit)
	mux.HandleFunc("/delete", s.handleDelete)
	mux.HandleFunc("/expire", s.handleExpire)
	mux.HandleFunc("/health", s.handleHealth)
	return s.withCORS(s.withRecovery(mux))
}

// handleRoot keeps "/" as a POST alias for /submit; everything else that
// falls through the mux is a 404.
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		s.writeJSON(w, http.StatusNotFound, errorBody("not found", "unknown route"))
		return
	}
	s.handleSubmit(w, r)
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeMethodNotAllowed(w)
		return
	}
	if !s.authorized(r) {
		s.writeError(w, domain.ErrUnauthorized)
		return
	}

	var req service.CreateRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, err)
		return
	}

	listing, err := s.listings.Create(r.Context(), &req)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"success":       true,
		"classified_id": listing.ObjectID,
		"expires_at":    listing.ExpiresAt,
	})
}

func (s *Server) handleEdit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		s.writeMethodNotAllowed(w)
		return
	}
	if !s.authorized(r) {
		s.writeError(w, domain.ErrUnauthorized)
		return
	}

	var req service.EditRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, err)
		return
	}

	listing, err := s.listings.Edit(r.Context(), &req)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"success":       true,
		"classified_id": listing.ObjectID,
		"updated_at":    listing.UpdatedAt,
	})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		s.writeMethodNotAllowed(w)
		return
	}
	if !s.authorized(r) {
		s.writeError(w, domain.ErrUnauthorized)
		return
	}

	var req struct {
		ClassifiedID string `json:"classified_id"`
	}
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, err)
		return
	}

	if err := s.listings.Delete(r.Context(), req.ClassifiedID); err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"success":       true,
		"classified_id": req.ClassifiedID,
	})
}

// handleExpire runs a single expire when an identifier is supplied and the
// full sweep otherwise. No shared secret: the route is also driven by
// schedulers.
func (s *Server) handleExpire(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeMethodNotAllowed(w)
		return
	}

	// An empty body means "run the sweep", so only a present-but-broken
	// payload is a caller error.
	var req struct {
		ClassifiedID string `json:"classified_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		s.writeError(w, &domain.ValidationError{Message: "invalid request body"})
		return
	}

	if req.ClassifiedID != "" {
		if err := s.listings.ExpireOne(r.Context(), req.ClassifiedID); err != nil {
			s.writeError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"expired": []string{req.ClassifiedID},
		})
		return
	}

	expired, err := s.listings.Sweep(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"expired": expired,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeMethodNotAllowed(w)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) authorized(r *http.Request) bool {
	secret := r.Header.Get(HeaderSecret)
	return secret != "" && secret == s.secret
}

func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, "+HeaderSecret)

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) withRecovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("handler panic", "path", r.URL.Path, "panic", rec)
				s.writeJSON(w, http.StatusInternalServerError,
					errorBody("internal server error", fmt.Sprint(rec)))
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func decodeBody(r *http.Request, out any) error {
	if err := json.NewDecoder(r.Body).Decode(out); err != nil {
		return &domain.ValidationError{Message: "invalid request body"}
	}
	return nil
}

// writeError maps the error taxonomy onto status codes: validation 400,
// bad secret 401, missing record 404, everything else 500.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	var validation *domain.ValidationError
	switch {
	case errors.As(err, &validation):
		body := errorBody("validation failed", validation.Error())
		if len(validation.Missing) > 0 {
			body["error"] = "missing required fields"
			body["missing"] = validation.Missing
		}
		s.writeJSON(w, http.StatusBadRequest, body)
	case errors.Is(err, domain.ErrUnauthorized):
		s.writeJSON(w, http.StatusUnauthorized, errorBody("invalid credentials", err.Error()))
	case errors.Is(err, domain.ErrNotFound):
		s.writeJSON(w, http.StatusNotFound, errorBody("not found", err.Error()))
	default:
		s.logger.Error("request failed", "error", err)
		s.writeJSON(w, http.StatusInternalServerError, errorBody("internal server error", err.Error()))
	}
}

func (s *Server) writeMethodNotAllowed(w http.ResponseWriter) {
	s.writeJSON(w, http.StatusMethodNotAllowed, errorBody("method not allowed", "method not allowed"))
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}

func errorBody(kind, message string) map[string]any {
	return map[string]any{"error": kind, "message": message}
}
