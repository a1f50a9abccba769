package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"aotcache/pkg/logging"
)

// NewSession handles POST /v1/sessions: mint a session handle clients
// attach to compile requests that carry guaranteed constants. Minting
// happens here, once per session, so key derivation itself stays a pure
// function.
func (h *Handler) NewSession(w http.ResponseWriter, r *http.Request) {
	handle := uuid.NewString()

	logging.L(r.Context()).Info("session_created",
		zap.String("session_handle", handle))

	h.writeJSON(w, http.StatusCreated, map[string]string{"session_handle": handle})
}

// DeleteSession handles DELETE /v1/sessions/{handle}: evict every cached
// artifact the session owns.
func (h *Handler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	handle := chi.URLParam(r, "handle")
	if handle == "" {
		h.writeError(w, http.StatusBadRequest, "session handle is required")
		return
	}

	evicted, err := h.Lookup.EvictSession(ctx, handle)
	if err != nil {
		logging.L(ctx).Error("session eviction failed",
			zap.String("session_handle", handle), zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "session eviction failed")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]int{"evicted": evicted})
}
