package handlers

import (
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"aotcache/internal/registry"
	"aotcache/internal/store"
	"aotcache/pkg/logging"
)

const contentTypeEnvelope = "application/x-msgpack"

// GetProgram handles GET /v1/programs/{key}: stream the stored artifact
// envelope back, or 404 on a miss.
func (h *Handler) GetProgram(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	key := chi.URLParam(r, "key")

	data, hit, err := h.Store.Get(ctx, key)
	if err != nil {
		// Backend trouble is the service's fault, not the caller's.
		h.writeError(w, http.StatusBadGateway, "artifact store unavailable")
		return
	}
	if !hit {
		h.writeError(w, http.StatusNotFound, "not found")
		return
	}

	w.Header().Set("Content-Type", contentTypeEnvelope)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// PutProgram handles PUT /v1/programs/{key}: store an artifact envelope.
// The body must decode as an envelope; an optional ttl query parameter
// (whole seconds) overrides the configured default.
func (h *Handler) PutProgram(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.L(ctx)
	key := chi.URLParam(r, "key")

	body, err := io.ReadAll(r.Body)
	if err != nil {
		// MaxBytesReader surfaces oversized bodies as read errors.
		h.writeError(w, http.StatusRequestEntityTooLarge, "body too large or unreadable")
		return
	}

	artifact, err := store.DecodeArtifact(body)
	if err != nil {
		logger.Warn("rejecting undecodable artifact", zap.Error(err))
		h.writeError(w, http.StatusBadRequest, "body is not an artifact envelope")
		return
	}

	ttl := h.TTL
	if raw := r.URL.Query().Get("ttl"); raw != "" {
		secs, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || secs < 0 {
			h.writeError(w, http.StatusBadRequest, "invalid ttl")
			return
		}
		ttl = time.Duration(secs) * time.Second
	}

	if err := h.Store.Set(ctx, key, body, ttl); err != nil {
		logger.Error("artifact store set failed", zap.Error(err))
		h.writeError(w, http.StatusBadGateway, "artifact store unavailable")
		return
	}

	if err := h.Registry.Insert(newEntry(key, artifact, len(body))); err != nil {
		// The artifact is stored; a registry hiccup only degrades eviction.
		logger.Warn("registry insert failed", zap.Error(err))
	}

	logger.Info("artifact_stored",
		zap.String("cache_key", key),
		zap.String("function", artifact.FunctionName),
		zap.Int("size_bytes", len(body)),
		zap.Duration("ttl", ttl),
	)

	w.WriteHeader(http.StatusNoContent)
}

// DeleteProgram handles DELETE /v1/programs/{key}.
func (h *Handler) DeleteProgram(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	key := chi.URLParam(r, "key")

	if err := h.Store.Delete(ctx, key); err != nil {
		logging.L(ctx).Error("artifact store delete failed", zap.Error(err))
		h.writeError(w, http.StatusBadGateway, "artifact store unavailable")
		return
	}
	if err := h.Registry.Delete(key); err != nil {
		logging.L(ctx).Warn("registry delete failed", zap.Error(err))
	}

	w.WriteHeader(http.StatusNoContent)
}

// newEntry builds the registry record for an uploaded envelope. The
// session handle comes from the key when it is session scoped, falling
// back to what the envelope claims.
func newEntry(key string, artifact store.Artifact, size int) registry.Entry {
	prefix := key
	session := artifact.SessionHandle
	if parts := strings.Split(key, "|"); len(parts) == 3 {
		prefix = parts[0]
		session = parts[1]
	}
	return registry.Entry{
		Key:           key,
		Prefix:        prefix,
		FunctionName:  artifact.FunctionName,
		SessionHandle: session,
		SizeBytes:     int64(size),
		CreatedAt:     time.Now(),
	}
}
