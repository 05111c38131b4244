// Package admin serves the HTML administration interface.
package admin

import (
	"crypto/subtle"
	"embed"
	"errors"
	"html/template"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/joescharf/nest/internal/models"
	"github.com/joescharf/nest/internal/store"
)

//go:embed templates/*.html
var templatesFS embed.FS

// Config holds the admin credentials and URLs.
type Config struct {
	Username  string
	Password  string
	Prefix    string // mount path, e.g. "/a"
	StaticURL string
}

// Handler serves the admin pages.
type Handler struct {
	cfg    Config
	store  store.Store
	pages  map[string]*template.Template
	logger *slog.Logger
}

var pageNames = []string{"index.html", "projects.html", "project_form.html", "repositories.html"}

// New creates the admin handler. Every request is refused with 403 until
// both username and password are configured.
func New(cfg Config, s store.Store, logger *slog.Logger) (http.Handler, error) {
	if logger == nil {
		logger = slog.Default()
	}
	cfg.Prefix = "/" + strings.Trim(cfg.Prefix, "/")

	h := &Handler{cfg: cfg, store: s, pages: make(map[string]*template.Template), logger: logger}
	funcs := template.FuncMap{
		"join": strings.Join,
		"url":  func(p string) string { return cfg.Prefix + p },
	}
	for _, name := range pageNames {
		t, err := template.New(name).Funcs(funcs).ParseFS(templatesFS, "templates/base.html", "templates/"+name)
		if err != nil {
			return nil, err
		}
		h.pages[name] = t
	}

	r := chi.NewRouter()
	// Browsers resend basic-auth credentials on cross-site form posts.
	r.Use(http.NewCrossOriginProtection().Handler)
	r.Use(h.requireAuth)
	r.Get("/", h.index)
	r.Get("/projects/", h.listProjects)
	r.Get("/projects/{key}/", h.editProject)
	r.Post("/projects/{key}/", h.saveProject)
	r.Post("/projects/{key}/delete/", h.deleteProject)
	r.Get("/repositories/", h.listRepositories)
	return r, nil
}

func (h *Handler) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.cfg.Username == "" || h.cfg.Password == "" {
			http.Error(w, "admin disabled: set admin.username and admin.password", http.StatusForbidden)
			return
		}
		user, pass, ok := r.BasicAuth()
		if !ok ||
			subtle.ConstantTimeCompare([]byte(user), []byte(h.cfg.Username)) != 1 ||
			subtle.ConstantTimeCompare([]byte(pass), []byte(h.cfg.Password)) != 1 {
			w.Header().Set("WWW-Authenticate", `Basic realm="nest admin"`)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type pageData struct {
	Title     string
	StaticURL string
	Error     string
	Data      any
}

func (h *Handler) render(w http.ResponseWriter, status int, page, title string, data any, errMsg string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	pd := pageData{Title: title, StaticURL: h.cfg.StaticURL, Error: errMsg, Data: data}
	if err := h.pages[page].ExecuteTemplate(w, "base", pd); err != nil {
		h.logger.Error("admin render failed", "page", page, "error", err)
	}
}

func (h *Handler) fail(w http.ResponseWriter, err error) {
	if errors.Is(err, store.ErrNotFound) {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	h.logger.Error("admin request failed", "error", err)
	http.Error(w, err.Error(), http.StatusInternalServerError)
}

type indexData struct {
	Projects     int
	Repositories int
}

func (h *Handler) index(w http.ResponseWriter, r *http.Request) {
	projects, err := h.store.ListProjects(r.Context(), store.ProjectListFilter{})
	if err != nil {
		h.fail(w, err)
		return
	}
	repos, err := h.store.ListRepositories(r.Context())
	if err != nil {
		h.fail(w, err)
		return
	}
	h.render(w, http.StatusOK, "index.html", "Site administration", indexData{Projects: len(projects), Repositories: len(repos)}, "")
}

type projectsData struct {
	Query    string
	Level    string
	Levels   []models.ProjectLevel
	Projects []*models.Project
}

func (h *Handler) listProjects(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	filter := store.ProjectListFilter{}
	level := r.URL.Query().Get("level")
	if l, err := models.ParseProjectLevel(level); err == nil {
		filter.Level = l
	}

	projects, err := h.store.ListProjects(r.Context(), filter)
	if err != nil {
		h.fail(w, err)
		return
	}
	if q != "" {
		matched := projects[:0]
		for _, p := range projects {
			if p.Matches(q) {
				matched = append(matched, p)
			}
		}
		projects = matched
	}
	h.render(w, http.StatusOK, "projects.html", "Projects", projectsData{
		Query: q, Level: level, Levels: models.ProjectLevels, Projects: projects,
	}, "")
}

type projectFormData struct {
	Project *models.Project
	Tags    string
	Levels  []models.ProjectLevel
	Types   []models.ProjectType
}

func (h *Handler) formData(p *models.Project) projectFormData {
	return projectFormData{
		Project: p,
		Tags:    strings.Join(p.Tags, ", "),
		Levels:  models.ProjectLevels,
		Types:   models.ProjectTypes,
	}
}

func (h *Handler) editProject(w http.ResponseWriter, r *http.Request) {
	p, err := h.store.GetProjectByKey(r.Context(), chi.URLParam(r, "key"))
	if err != nil {
		h.fail(w, err)
		return
	}
	h.render(w, http.StatusOK, "project_form.html", "Change project", h.formData(p), "")
}

func (h *Handler) saveProject(w http.ResponseWriter, r *http.Request) {
	p, err := h.store.GetProjectByKey(r.Context(), chi.URLParam(r, "key"))
	if err != nil {
		h.fail(w, err)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}

	p.Name = strings.TrimSpace(r.PostForm.Get("name"))
	p.Description = strings.TrimSpace(r.PostForm.Get("description"))
	p.Level = models.ProjectLevel(r.PostForm.Get("level"))
	p.Type = models.ProjectType(r.PostForm.Get("type"))
	p.Tags = splitTags(r.PostForm.Get("tags"))

	if err := h.store.UpdateProject(r.Context(), p); err != nil {
		if errors.Is(err, models.ErrInvalid) {
			h.render(w, http.StatusBadRequest, "project_form.html", "Change project", h.formData(p), err.Error())
			return
		}
		h.fail(w, err)
		return
	}
	h.logger.Info("admin updated project", "project", p.Key)
	http.Redirect(w, r, h.cfg.Prefix+"/projects/", http.StatusSeeOther)
}

func (h *Handler) deleteProject(w http.ResponseWriter, r *http.Request) {
	p, err := h.store.GetProjectByKey(r.Context(), chi.URLParam(r, "key"))
	if err != nil {
		h.fail(w, err)
		return
	}
	if err := h.store.DeleteProject(r.Context(), p.ID); err != nil {
		h.fail(w, err)
		return
	}
	h.logger.Info("admin deleted project", "project", p.Key)
	http.Redirect(w, r, h.cfg.Prefix+"/projects/", http.StatusSeeOther)
}

func (h *Handler) listRepositories(w http.ResponseWriter, r *http.Request) {
	repos, err := h.store.ListRepositories(r.Context())
	if err != nil {
		h.fail(w, err)
		return
	}
	h.render(w, http.StatusOK, "repositories.html", "Repositories", repos, "")
}

func splitTags(s string) []string {
	tags := []string{}
	for _, t := range strings.Split(s, ",") {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}
