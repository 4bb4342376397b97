// Package api exposes the advisory runtime over HTTP. Authentication
// and consent scoping happen upstream; the caller's identity arrives
// on the X-User-ID header.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/meridianfi/meridian/internal/conversation"
	"github.com/meridianfi/meridian/internal/policy"
	"github.com/meridianfi/meridian/internal/store"
)

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	orc    *conversation.Orchestrator
	gate   *policy.Gate
	store  *store.Store
	logger *zap.Logger
}

// NewHandler creates a new API handler.
func NewHandler(orc *conversation.Orchestrator, gate *policy.Gate, st *store.Store, logger *zap.Logger) *Handler {
	return &Handler{orc: orc, gate: gate, store: st, logger: logger}
}

// Router builds the chi router with all routes.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-User-ID"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.healthCheck)
		r.Get("/skills", h.listSkills)

		r.Post("/sessions", h.startSession)
		r.Get("/sessions/{id}", h.getSession)
		r.Post("/sessions/{id}/messages", h.sendMessage)
		r.Get("/sessions/{id}/traces", h.listTraces)

		r.Get("/policy", h.getPolicy)
		r.Put("/policy", h.upsertPolicy)

		r.Get("/approvals", h.listApprovals)
		r.Post("/approvals/{id}/approve", h.approveAction)
		r.Post("/approvals/{id}/reject", h.rejectAction)

		r.Get("/recommendations", h.listRecommendations)
		r.Post("/recommendations/{id}/status", h.setRecommendationStatus)
	})

	return r
}

func (h *Handler) healthCheck(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) listSkills(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, map[string]any{"skills": conversation.Skills()})
}

func (h *Handler) startSession(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	var req struct {
		Skill string `json:"skill"`
	}
	if r.Body != nil {
		// An empty body means no skill tag.
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	sess, err := h.orc.StartSession(r.Context(), userID, req.Skill)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.respondJSON(w, http.StatusCreated, sess)
}

func (h *Handler) getSession(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")
	sess, err := h.store.GetSession(r.Context(), id)
	if errors.Is(err, store.ErrSessionNotFound) {
		h.respondError(w, http.StatusNotFound, "session not found")
		return
	}
	if err != nil {
		h.internalError(w, err)
		return
	}
	if sess.UserID != userID {
		h.respondError(w, http.StatusForbidden, "not your session")
		return
	}
	transcript, err := h.store.GetTranscript(r.Context(), id)
	if err != nil {
		h.internalError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]any{
		"session":    sess,
		"transcript": transcript,
	})
}

// sendMessage streams the turn's chunks as NDJSON. Validation and
// policy errors arrive inside tool_use chunks; transport and
// configuration failures terminate the stream with an error chunk.
func (h *Handler) sendMessage(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")
	var req struct {
		Message string `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Message == "" {
		h.respondError(w, http.StatusBadRequest, "message is required")
		return
	}

	chunks, err := h.orc.SendMessage(r.Context(), id, userID, req.Message)
	if errors.Is(err, conversation.ErrTurnInProgress) {
		h.respondError(w, http.StatusConflict, err.Error())
		return
	}
	if errors.Is(err, store.ErrSessionNotFound) {
		h.respondError(w, http.StatusNotFound, "session not found")
		return
	}
	if err != nil {
		h.internalError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)
	flusher, _ := w.(http.Flusher)
	enc := json.NewEncoder(w)
	for chunk := range chunks {
		if err := enc.Encode(chunk); err != nil {
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
	}
}

func (h *Handler) listTraces(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")
	sess, err := h.store.GetSession(r.Context(), id)
	if errors.Is(err, store.ErrSessionNotFound) {
		h.respondError(w, http.StatusNotFound, "session not found")
		return
	}
	if err != nil {
		h.internalError(w, err)
		return
	}
	if sess.UserID != userID {
		h.respondError(w, http.StatusForbidden, "not your session")
		return
	}
	traces, err := h.store.ListTraces(r.Context(), id)
	if err != nil {
		h.internalError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]any{"traces": traces})
}

func (h *Handler) getPolicy(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	pol, err := h.store.ActivePolicy(r.Context(), userID)
	if err != nil {
		h.internalError(w, err)
		return
	}
	if pol == nil {
		h.respondError(w, http.StatusNotFound, "no active policy configured")
		return
	}
	h.respondJSON(w, http.StatusOK, pol)
}

func (h *Handler) upsertPolicy(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	var pol policy.ActionPolicy
	if err := json.NewDecoder(r.Body).Decode(&pol); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid policy body")
		return
	}
	pol.UserID = userID
	if pol.Status == "" {
		pol.Status = policy.PolicyActive
	}
	if err := h.store.UpsertPolicy(r.Context(), &pol); err != nil {
		h.internalError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, pol)
}

func (h *Handler) listApprovals(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	approvals, err := h.store.ListPendingApprovals(r.Context(), userID)
	if err != nil {
		h.internalError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]any{"approvals": approvals})
}

func (h *Handler) approveAction(w http.ResponseWriter, r *http.Request) {
	h.resolveApproval(w, r, h.gate.Approve)
}

func (h *Handler) rejectAction(w http.ResponseWriter, r *http.Request) {
	h.resolveApproval(w, r, h.gate.Reject)
}

func (h *Handler) resolveApproval(w http.ResponseWriter, r *http.Request, resolve func(ctx context.Context, id string) error) {
	id := chi.URLParam(r, "id")
	err := resolve(r.Context(), id)
	if errors.Is(err, store.ErrApprovalNotFound) {
		h.respondError(w, http.StatusNotFound, "approval not found")
		return
	}
	if errors.Is(err, policy.ErrNotPending) {
		h.respondError(w, http.StatusConflict, "approval already resolved")
		return
	}
	if err != nil {
		h.internalError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]string{"id": id, "status": "resolved"})
}

func (h *Handler) listRecommendations(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	recs, err := h.store.ListRecommendations(r.Context(), userID)
	if err != nil {
		h.internalError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]any{"recommendations": recs})
}

func (h *Handler) setRecommendationStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if req.Status != "accepted" && req.Status != "dismissed" {
		h.respondError(w, http.StatusBadRequest, "status must be accepted or dismissed")
		return
	}
	err := h.store.SetRecommendationStatus(r.Context(), id, req.Status)
	if errors.Is(err, store.ErrRecommendationNotFound) {
		h.respondError(w, http.StatusNotFound, "recommendation not found")
		return
	}
	if err != nil {
		h.internalError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]string{"id": id, "status": req.Status})
}

func (h *Handler) userID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := r.Header.Get("X-User-ID")
	if id == "" {
		h.respondError(w, http.StatusUnauthorized, "X-User-ID header required")
		return "", false
	}
	return id, true
}

func (h *Handler) respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Warn("write response failed", zap.Error(err))
	}
}

func (h *Handler) respondError(w http.ResponseWriter, status int, msg string) {
	h.respondJSON(w, status, map[string]string{"error": msg})
}

func (h *Handler) internalError(w http.ResponseWriter, err error) {
	h.logger.Error("internal error", zap.Error(err))
	h.respondError(w, http.StatusInternalServerError, "internal error")
}
