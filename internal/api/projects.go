package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/joescharf/nest/internal/frontmatter"
	"github.com/joescharf/nest/internal/git"
	"github.com/joescharf/nest/internal/importer"
	"github.com/joescharf/nest/internal/models"
	"github.com/joescharf/nest/internal/store"
	"github.com/joescharf/nest/internal/telemetry"
)

// OWASPRegistry contributes the projects resource.
func OWASPRegistry(s store.Store, im *importer.Importer) *Registry {
	h := &projectHandler{store: s, importer: im}
	reg := NewRegistry()
	reg.Register("projects", "/projects", func(r chi.Router) {
		r.Get("/", h.list)
		r.Post("/", h.create)
		r.Route("/import", func(r chi.Router) {
			r.Post("/", h.importProject)
		})
		r.Route("/{key}", func(r chi.Router) {
			r.Get("/", h.get)
			r.Patch("/", h.update)
			r.Delete("/", h.delete)
		})
	})
	return reg
}

type projectHandler struct {
	store    store.Store
	importer *importer.Importer
}

// projectPatch carries the fields a PATCH may change. Absent fields are kept.
type projectPatch struct {
	Name         *string              `json:"name"`
	Description  *string              `json:"description"`
	Level        *models.ProjectLevel `json:"level"`
	Type         *models.ProjectType  `json:"type"`
	Tags         *[]string            `json:"tags"`
	RepositoryID *string              `json:"repository_id"`
}

func (h *projectHandler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.ProjectListFilter{Tag: q.Get("tag")}
	if v := q.Get("level"); v != "" {
		level, err := models.ParseProjectLevel(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		filter.Level = level
	}
	if v := q.Get("type"); v != "" {
		typ, err := models.ParseProjectType(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		filter.Type = typ
	}

	projects, err := h.store.ListProjects(r.Context(), filter)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	matched := []*models.Project{}
	for _, p := range projects {
		if p.Matches(q.Get("q")) {
			matched = append(matched, p)
		}
	}
	writeJSON(w, http.StatusOK, matched)
}

func (h *projectHandler) get(w http.ResponseWriter, r *http.Request) {
	p, err := h.store.GetProjectByKey(r.Context(), chi.URLParam(r, "key"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *projectHandler) create(w http.ResponseWriter, r *http.Request) {
	var p models.Project
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	p.ID = ""
	if p.Name == "" {
		p.Name = p.Key
	}
	if p.RepositoryID != nil {
		repo, ok := h.resolveRepository(w, r, *p.RepositoryID)
		if !ok {
			return
		}
		p.SetRepository(repo)
	}
	if err := h.store.CreateProject(r.Context(), &p); err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (h *projectHandler) update(w http.ResponseWriter, r *http.Request) {
	existing, err := h.store.GetProjectByKey(r.Context(), chi.URLParam(r, "key"))
	if err != nil {
		writeStoreError(w, err)
		return
	}

	var patch projectPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	if patch.Name != nil {
		existing.Name = *patch.Name
	}
	if patch.Description != nil {
		existing.Description = *patch.Description
	}
	if patch.Level != nil {
		existing.Level = *patch.Level
	}
	if patch.Type != nil {
		existing.Type = *patch.Type
	}
	if patch.Tags != nil {
		existing.Tags = *patch.Tags
	}
	if patch.RepositoryID != nil {
		repo, ok := h.resolveRepository(w, r, *patch.RepositoryID)
		if !ok {
			return
		}
		existing.SetRepository(repo)
	}

	if err := h.store.UpdateProject(r.Context(), existing); err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, existing)
}

// resolveRepository looks up a repository_id from a request body. An empty id
// clears the reference; an unknown one is a client error.
func (h *projectHandler) resolveRepository(w http.ResponseWriter, r *http.Request, id string) (*models.Repository, bool) {
	if id == "" {
		return nil, true
	}
	repo, err := h.store.GetRepository(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusBadRequest, "unknown repository_id: "+id)
		return nil, false
	}
	if err != nil {
		writeStoreError(w, err)
		return nil, false
	}
	return repo, true
}

func (h *projectHandler) delete(w http.ResponseWriter, r *http.Request) {
	p, err := h.store.GetProjectByKey(r.Context(), chi.URLParam(r, "key"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if err := h.store.DeleteProject(r.Context(), p.ID); err != nil {
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type importRequest struct {
	Repository string `json:"repository"`
}

type importResponse struct {
	Result  *importer.Result `json:"result"`
	Project *models.Project  `json:"project"`
}

func (h *projectHandler) importProject(w http.ResponseWriter, r *http.Request) {
	if h.importer == nil {
		writeError(w, http.StatusServiceUnavailable, "GitHub import not configured")
		return
	}

	var req importRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	owner, name, err := git.ExtractOwnerRepo(req.Repository)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, p, err := h.importer.Project(r.Context(), owner, name)
	switch {
	case errors.Is(err, git.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
		return
	case errors.Is(err, frontmatter.ErrMalformed):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	case err != nil:
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	status := http.StatusOK
	if res.Outcome == telemetry.OutcomeCreated {
		status = http.StatusCreated
	}
	writeJSON(w, status, importResponse{Result: res, Project: p})
}
