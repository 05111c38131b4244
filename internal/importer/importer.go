// Package importer pulls project metadata from GitHub into the store.
package importer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"golang.org/x/time/rate"

	"github.com/joescharf/nest/internal/git"
	"github.com/joescharf/nest/internal/models"
	"github.com/joescharf/nest/internal/store"
	"github.com/joescharf/nest/internal/telemetry"
)

// DefaultPrefix selects OWASP project repositories.
const DefaultPrefix = "www-project-"

// Result holds the outcome of importing a single repository.
type Result struct {
	Repository string `json:"repository"`
	ProjectKey string `json:"project_key,omitempty"`
	Outcome    string `json:"outcome"`
	Error      string `json:"error,omitempty"`
}

// AllResult holds the outcome of importing every matching repository of an owner.
type AllResult struct {
	Total     int      `json:"total"`
	Created   int      `json:"created"`
	Updated   int      `json:"updated"`
	Unchanged int      `json:"unchanged"`
	Skipped   int      `json:"skipped"`
	Failed    int      `json:"failed"`
	Results   []Result `json:"results"`
}

func (r *AllResult) add(res Result) {
	r.Results = append(r.Results, res)
	switch res.Outcome {
	case telemetry.OutcomeCreated:
		r.Created++
	case telemetry.OutcomeUpdated:
		r.Updated++
	case telemetry.OutcomeUnchanged:
		r.Unchanged++
	case telemetry.OutcomeSkipped:
		r.Skipped++
	case telemetry.OutcomeFailed:
		r.Failed++
	}
}

// Options controls a bulk import.
type Options struct {
	Owner     string
	Prefix    string
	Limit     int
	RateLimit float64 // GitHub requests per second; 0 means unlimited
	Burst     int
}

// Importer maps GitHub repositories onto Repository and Project records.
type Importer struct {
	store   store.Store
	gh      git.GitHubClient
	metrics *telemetry.Metrics
	logger  *slog.Logger
}

// New creates an Importer. metrics may be nil; a nil logger uses slog.Default.
func New(s store.Store, gh git.GitHubClient, metrics *telemetry.Metrics, logger *slog.Logger) *Importer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Importer{store: s, gh: gh, metrics: metrics, logger: logger}
}

// Project imports owner/name and persists the resulting project.
func (im *Importer) Project(ctx context.Context, owner, name string) (*Result, *models.Project, error) {
	info, err := im.gh.RepoInfo(ctx, owner, name)
	if err != nil {
		im.metrics.RecordImport(ctx, telemetry.OutcomeFailed)
		return nil, nil, fmt.Errorf("fetch %s/%s: %w", owner, name, err)
	}
	return im.importRepo(ctx, *info)
}

func (im *Importer) importRepo(ctx context.Context, info git.RepoInfo) (*Result, *models.Project, error) {
	res := &Result{Repository: info.Owner + "/" + info.Name}

	p, outcome, err := im.sync(ctx, info)
	if err != nil {
		res.Outcome = telemetry.OutcomeFailed
		res.Error = err.Error()
		im.metrics.RecordImport(ctx, res.Outcome)
		im.logger.Warn("project import failed", "repository", res.Repository, "error", err)
		return res, nil, err
	}

	res.ProjectKey = p.Key
	res.Outcome = outcome
	im.metrics.RecordImport(ctx, outcome)
	im.logger.Debug("project imported", "repository", res.Repository, "project", p.Key, "outcome", outcome)
	return res, p, nil
}

func (im *Importer) sync(ctx context.Context, info git.RepoInfo) (*models.Project, string, error) {
	repo, err := im.upsertRepository(ctx, info)
	if err != nil {
		return nil, "", err
	}

	created := false
	p, err := im.store.GetProjectByKey(ctx, info.Name)
	if errors.Is(err, store.ErrNotFound) {
		p = models.NewProject(info.Name, info.Name)
		created = true
	} else if err != nil {
		return nil, "", err
	}

	before := *p
	before.Tags = slices.Clone(p.Tags)

	if err := p.FromGitHub(ctx, git.NewRemote(im.gh, info.Owner, info.Name), repo); err != nil {
		return nil, "", err
	}

	switch {
	case created:
		if err := im.store.CreateProject(ctx, p); err != nil {
			return nil, "", err
		}
		return p, telemetry.OutcomeCreated, nil
	case projectChanged(&before, p):
		if err := im.store.UpdateProject(ctx, p); err != nil {
			return nil, "", err
		}
		return p, telemetry.OutcomeUpdated, nil
	default:
		return p, telemetry.OutcomeUnchanged, nil
	}
}

func (im *Importer) upsertRepository(ctx context.Context, info git.RepoInfo) (*models.Repository, error) {
	key := models.RepositoryKey(info.Owner, info.Name)
	repo, err := im.store.GetRepositoryByKey(ctx, key)
	if errors.Is(err, store.ErrNotFound) {
		repo = &models.Repository{Key: key, Owner: info.Owner, Name: info.Name}
		applyRepoInfo(repo, info)
		if err := im.store.CreateRepository(ctx, repo); err != nil {
			return nil, err
		}
		return repo, nil
	}
	if err != nil {
		return nil, err
	}

	before := *repo
	applyRepoInfo(repo, info)
	if *repo != before {
		if err := im.store.UpdateRepository(ctx, repo); err != nil {
			return nil, err
		}
	}
	return repo, nil
}

func applyRepoInfo(repo *models.Repository, info git.RepoInfo) {
	repo.Owner = info.Owner
	repo.Name = info.Name
	repo.Description = info.Description
	repo.URL = info.URL
	repo.Language = info.Language
	repo.Stars = info.Stars
	repo.IsArchived = info.IsArchived
}

func projectChanged(a, b *models.Project) bool {
	if a.Name != b.Name || a.Description != b.Description || a.Level != b.Level || a.Type != b.Type {
		return true
	}
	if !slices.Equal(a.Tags, b.Tags) {
		return true
	}
	switch {
	case a.RepositoryID == nil && b.RepositoryID == nil:
		return false
	case a.RepositoryID == nil || b.RepositoryID == nil:
		return true
	default:
		return *a.RepositoryID != *b.RepositoryID
	}
}

// All imports every repository of opts.Owner whose name starts with the prefix.
// Archived repositories are skipped. A failure on one repository is recorded
// in the result and does not stop the run.
func (im *Importer) All(ctx context.Context, opts Options) (*AllResult, error) {
	if opts.Prefix == "" {
		opts.Prefix = DefaultPrefix
	}

	repos, err := im.gh.ListRepos(ctx, opts.Owner, opts.Limit)
	if err != nil {
		return nil, fmt.Errorf("list %s repositories: %w", opts.Owner, err)
	}

	limit := rate.Inf
	if opts.RateLimit > 0 {
		limit = rate.Limit(opts.RateLimit)
	}
	burst := opts.Burst
	if burst <= 0 {
		burst = 1
	}
	limiter := rate.NewLimiter(limit, burst)

	result := &AllResult{}
	for _, info := range repos {
		if !strings.HasPrefix(info.Name, opts.Prefix) {
			continue
		}
		result.Total++

		if info.IsArchived {
			result.add(Result{Repository: info.Owner + "/" + info.Name, Outcome: telemetry.OutcomeSkipped})
			im.metrics.RecordImport(ctx, telemetry.OutcomeSkipped)
			continue
		}

		if err := limiter.Wait(ctx); err != nil {
			return result, err
		}

		res, _, _ := im.importRepo(ctx, info)
		result.add(*res)
	}

	im.logger.Info("import finished",
		"owner", opts.Owner,
		"total", result.Total,
		"created", result.Created,
		"updated", result.Updated,
		"failed", result.Failed,
	)
	return result, nil
}
