package importer

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/nest/internal/git"
	"github.com/joescharf/nest/internal/models"
	"github.com/joescharf/nest/internal/store"
	"github.com/joescharf/nest/internal/telemetry"
)

// fakeGitHub serves repositories and index.md files from memory.
type fakeGitHub struct {
	repos   []git.RepoInfo
	indexes map[string]string // "owner/name" -> index.md text
	listErr error
}

func (f *fakeGitHub) RepoInfo(_ context.Context, owner, repo string) (*git.RepoInfo, error) {
	for _, r := range f.repos {
		if r.Owner == owner && r.Name == repo {
			info := r
			return &info, nil
		}
	}
	return nil, git.ErrNotFound
}

func (f *fakeGitHub) Contents(_ context.Context, owner, repo, path string) (*models.FileContent, error) {
	if path != models.IndexFile {
		return nil, nil
	}
	text, ok := f.indexes[owner+"/"+repo]
	if !ok {
		return nil, nil
	}
	return &models.FileContent{
		Path:     path,
		Content:  base64.StdEncoding.EncodeToString([]byte(text)),
		Encoding: "base64",
	}, nil
}

func (f *fakeGitHub) ListRepos(_ context.Context, _ string, _ int) ([]git.RepoInfo, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.repos, nil
}

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { s.Close() })
	return s
}

func newTestImporter(t *testing.T, gh git.GitHubClient) (*Importer, store.Store) {
	t.Helper()
	s := newTestStore(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(s, gh, nil, logger), s
}

const zapIndex = `---
layout: col-sidebar
title: OWASP ZAP
pitch: The world's most widely used web app scanner.
level: 4
type: code
tags: [dast, scanner]
---

Body text.
`

func zapRepo() git.RepoInfo {
	return git.RepoInfo{
		Owner:       "OWASP",
		Name:        "www-project-zap",
		Description: "OWASP ZAP project page",
		Stars:       12,
		Language:    "HTML",
		URL:         "https://github.com/OWASP/www-project-zap",
	}
}

func TestProject_CreatesProjectAndRepository(t *testing.T) {
	gh := &fakeGitHub{
		repos:   []git.RepoInfo{zapRepo()},
		indexes: map[string]string{"OWASP/www-project-zap": zapIndex},
	}
	im, s := newTestImporter(t, gh)
	ctx := context.Background()

	res, p, err := im.Project(ctx, "OWASP", "www-project-zap")
	require.NoError(t, err)
	assert.Equal(t, telemetry.OutcomeCreated, res.Outcome)
	assert.Equal(t, "www-project-zap", res.ProjectKey)

	assert.Equal(t, "OWASP ZAP", p.Name)
	assert.Equal(t, models.ProjectLevelFlagship, p.Level)
	assert.Equal(t, models.ProjectTypeCode, p.Type)
	assert.Equal(t, []string{"dast", "scanner"}, p.Tags)

	repo, err := s.GetRepositoryByKey(ctx, "owasp/www-project-zap")
	require.NoError(t, err)
	assert.Equal(t, 12, repo.Stars)
	require.NotNil(t, p.RepositoryID)
	assert.Equal(t, repo.ID, *p.RepositoryID)

	stored, err := s.GetProjectByKey(ctx, "www-project-zap")
	require.NoError(t, err)
	assert.Equal(t, p.ID, stored.ID)
	assert.Equal(t, "OWASP ZAP", stored.Name)
}

func TestProject_SecondRunUnchanged(t *testing.T) {
	gh := &fakeGitHub{
		repos:   []git.RepoInfo{zapRepo()},
		indexes: map[string]string{"OWASP/www-project-zap": zapIndex},
	}
	im, _ := newTestImporter(t, gh)
	ctx := context.Background()

	_, _, err := im.Project(ctx, "OWASP", "www-project-zap")
	require.NoError(t, err)

	res, _, err := im.Project(ctx, "OWASP", "www-project-zap")
	require.NoError(t, err)
	assert.Equal(t, telemetry.OutcomeUnchanged, res.Outcome)
}

func TestProject_UpdatesChangedMetadata(t *testing.T) {
	gh := &fakeGitHub{
		repos:   []git.RepoInfo{zapRepo()},
		indexes: map[string]string{"OWASP/www-project-zap": zapIndex},
	}
	im, s := newTestImporter(t, gh)
	ctx := context.Background()

	_, _, err := im.Project(ctx, "OWASP", "www-project-zap")
	require.NoError(t, err)

	gh.indexes["OWASP/www-project-zap"] = "---\ntitle: Zed Attack Proxy\nlevel: 3\n---\n"
	res, _, err := im.Project(ctx, "OWASP", "www-project-zap")
	require.NoError(t, err)
	assert.Equal(t, telemetry.OutcomeUpdated, res.Outcome)

	stored, err := s.GetProjectByKey(ctx, "www-project-zap")
	require.NoError(t, err)
	assert.Equal(t, "Zed Attack Proxy", stored.Name)
	assert.Equal(t, models.ProjectLevelLab, stored.Level)
	// Fields absent from the new front matter keep their values.
	assert.Equal(t, models.ProjectTypeCode, stored.Type)
	assert.Equal(t, []string{"dast", "scanner"}, stored.Tags)
}

func TestProject_NoIndexKeepsDefaults(t *testing.T) {
	gh := &fakeGitHub{repos: []git.RepoInfo{zapRepo()}}
	im, _ := newTestImporter(t, gh)

	res, p, err := im.Project(context.Background(), "OWASP", "www-project-zap")
	require.NoError(t, err)
	assert.Equal(t, telemetry.OutcomeCreated, res.Outcome)
	assert.Equal(t, "www-project-zap", p.Name)
	assert.Equal(t, models.ProjectLevelUnknown, p.Level)
	assert.Nil(t, p.RepositoryID)
}

func TestProject_RepoNotFound(t *testing.T) {
	im, _ := newTestImporter(t, &fakeGitHub{})

	_, _, err := im.Project(context.Background(), "OWASP", "missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, git.ErrNotFound))
}

func TestProject_MalformedFrontMatterFails(t *testing.T) {
	gh := &fakeGitHub{
		repos:   []git.RepoInfo{zapRepo()},
		indexes: map[string]string{"OWASP/www-project-zap": "---\ntitle: [unclosed\n---\n"},
	}
	im, s := newTestImporter(t, gh)
	ctx := context.Background()

	res, _, err := im.Project(ctx, "OWASP", "www-project-zap")
	require.Error(t, err)
	assert.Equal(t, telemetry.OutcomeFailed, res.Outcome)
	assert.NotEmpty(t, res.Error)

	_, err = s.GetProjectByKey(ctx, "www-project-zap")
	assert.True(t, errors.Is(err, store.ErrNotFound))
}

func TestAll_FiltersPrefixAndArchived(t *testing.T) {
	archived := git.RepoInfo{Owner: "OWASP", Name: "www-project-old", IsArchived: true}
	other := git.RepoInfo{Owner: "OWASP", Name: "owasp.github.io"}
	broken := git.RepoInfo{Owner: "OWASP", Name: "www-project-broken"}
	gh := &fakeGitHub{
		repos: []git.RepoInfo{zapRepo(), archived, other, broken},
		indexes: map[string]string{
			"OWASP/www-project-zap":    zapIndex,
			"OWASP/www-project-broken": "---\ntags: [unclosed\n---\n",
		},
	}
	im, s := newTestImporter(t, gh)
	ctx := context.Background()

	result, err := im.All(ctx, Options{Owner: "OWASP", RateLimit: 100, Burst: 5})
	require.NoError(t, err)
	assert.Equal(t, 3, result.Total)
	assert.Equal(t, 1, result.Created)
	assert.Equal(t, 1, result.Skipped)
	assert.Equal(t, 1, result.Failed)
	assert.Len(t, result.Results, 3)

	projects, err := s.ListProjects(ctx, store.ProjectListFilter{})
	require.NoError(t, err)
	require.Len(t, projects, 1)
	assert.Equal(t, "www-project-zap", projects[0].Key)
}

func TestAll_CustomPrefix(t *testing.T) {
	gh := &fakeGitHub{
		repos: []git.RepoInfo{
			zapRepo(),
			{Owner: "OWASP", Name: "Nest"},
		},
	}
	im, _ := newTestImporter(t, gh)

	result, err := im.All(context.Background(), Options{Owner: "OWASP", Prefix: "Nest"})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Total)
	assert.Equal(t, 1, result.Created)
	assert.Equal(t, "Nest", result.Results[0].ProjectKey)
}

func TestAll_ListError(t *testing.T) {
	im, _ := newTestImporter(t, &fakeGitHub{listErr: errors.New("gh: not logged in")})

	_, err := im.All(context.Background(), Options{Owner: "OWASP"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not logged in")
}

func TestAll_CancelledContext(t *testing.T) {
	gh := &fakeGitHub{repos: []git.RepoInfo{zapRepo()}}
	im, _ := newTestImporter(t, gh)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := im.All(ctx, Options{Owner: "OWASP", RateLimit: 1})
	assert.Error(t, err)
}
