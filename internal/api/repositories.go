package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/joescharf/nest/internal/models"
	"github.com/joescharf/nest/internal/store"
)

// GitHubRegistry contributes the repositories resource.
func GitHubRegistry(s store.Store) *Registry {
	h := &repositoryHandler{store: s}
	reg := NewRegistry()
	reg.Register("repositories", "/repositories", func(r chi.Router) {
		r.Get("/", h.list)
		r.Route("/{owner}/{name}", func(r chi.Router) {
			r.Get("/", h.get)
			r.Delete("/", h.delete)
		})
	})
	return reg
}

type repositoryHandler struct {
	store store.Store
}

func (h *repositoryHandler) list(w http.ResponseWriter, r *http.Request) {
	repos, err := h.store.ListRepositories(r.Context())
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if repos == nil {
		repos = []*models.Repository{}
	}
	writeJSON(w, http.StatusOK, repos)
}

func (h *repositoryHandler) lookup(r *http.Request) (*models.Repository, error) {
	key := models.RepositoryKey(chi.URLParam(r, "owner"), chi.URLParam(r, "name"))
	return h.store.GetRepositoryByKey(r.Context(), key)
}

func (h *repositoryHandler) get(w http.ResponseWriter, r *http.Request) {
	repo, err := h.lookup(r)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, repo)
}

func (h *repositoryHandler) delete(w http.ResponseWriter, r *http.Request) {
	repo, err := h.lookup(r)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if err := h.store.DeleteRepository(r.Context(), repo.ID); err != nil {
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
