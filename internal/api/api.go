// Package api serves the versioned REST API.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/joescharf/nest/internal/models"
	"github.com/joescharf/nest/internal/store"
)

// Resource is a named group of routes mounted under Prefix.
type Resource struct {
	Name   string
	Prefix string
	Mount  func(r chi.Router)
}

// Registry collects resources contributed by one part of the application.
type Registry struct {
	resources []Resource
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds a resource under prefix, e.g. "/projects".
func (g *Registry) Register(name, prefix string, mount func(r chi.Router)) {
	g.resources = append(g.resources, Resource{Name: name, Prefix: prefix, Mount: mount})
}

// Extend appends every resource of other, keeping their order.
func (g *Registry) Extend(other *Registry) {
	if other == nil {
		return
	}
	g.resources = append(g.resources, other.resources...)
}

// Resources returns the registered resources in registration order.
func (g *Registry) Resources() []Resource {
	out := make([]Resource, len(g.resources))
	copy(out, g.resources)
	return out
}

// Router combines registries into a single handler. The root path lists the
// URL of every resource; each resource is mounted under its prefix.
func Router(registries ...*Registry) http.Handler {
	combined := NewRegistry()
	for _, reg := range registries {
		combined.Extend(reg)
	}

	r := chi.NewRouter()
	r.Use(corsMiddleware)
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	r.Get("/", apiRoot(combined.Resources()))
	for _, res := range combined.Resources() {
		r.Route(res.Prefix, res.Mount)
	}
	return r
}

func apiRoot(resources []Resource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		scheme := "http"
		if r.TLS != nil {
			scheme = "https"
		}
		if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
			scheme = proto
		}
		base := scheme + "://" + r.Host + strings.TrimSuffix(r.URL.Path, "/")

		links := make(map[string]string, len(resources))
		for _, res := range resources {
			links[res.Name] = base + res.Prefix + "/"
		}
		writeJSON(w, http.StatusOK, links)
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeStoreError maps store and validation errors onto status codes.
func writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, models.ErrInvalid):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, store.ErrDuplicateKey):
		writeError(w, http.StatusConflict, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
