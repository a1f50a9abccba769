// Package handlers exposes the compilation cache over HTTP: key
// derivation, artifact upload/download and session lifecycle.
package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"aotcache/internal/cachekey"
	"aotcache/internal/lookup"
	"aotcache/internal/registry"
	"aotcache/internal/store"
)

// Handler holds dependencies shared by the /v1 endpoints.
type Handler struct {
	Store    store.Store
	Registry *registry.Registry
	Lookup   *lookup.Cache
	TTL      time.Duration

	// Mesh is this deployment's device mesh; every derived key binds to it.
	Mesh cachekey.MeshState
}

func New(st store.Store, reg *registry.Registry, lc *lookup.Cache, ttl time.Duration, mesh cachekey.MeshState) *Handler {
	return &Handler{
		Store:    st,
		Registry: reg,
		Lookup:   lc,
		TTL:      ttl,
		Mesh:     mesh,
	}
}

// writeJSON is a small helper to send JSON responses consistently.
func (h *Handler) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError sends the service's JSON error envelope.
func (h *Handler) writeError(w http.ResponseWriter, status int, msg string) {
	h.writeJSON(w, status, map[string]string{"error": msg})
}
