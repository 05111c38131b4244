package git

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/joescharf/nest/internal/models"
)

// ErrNotFound is returned by the gh runner when the GitHub API answers 404.
var ErrNotFound = errors.New("not found on GitHub")

// RepoInfo represents basic GitHub repository information.
type RepoInfo struct {
	Name        string `json:"name"`
	Owner       string `json:"owner"`
	Description string `json:"description"`
	Stars       int    `json:"stargazerCount"`
	Language    string `json:"primaryLanguage"`
	IsArchived  bool   `json:"isArchived"`
	URL         string `json:"url"`
}

// GitHubClient reads repository metadata and file contents from GitHub.
type GitHubClient interface {
	RepoInfo(ctx context.Context, owner, repo string) (*RepoInfo, error)
	Contents(ctx context.Context, owner, repo, path string) (*models.FileContent, error)
	ListRepos(ctx context.Context, owner string, limit int) ([]RepoInfo, error)
}

// runFunc executes gh with the given arguments and returns trimmed stdout.
type runFunc func(ctx context.Context, args ...string) (string, error)

// RealGitHubClient implements GitHubClient using the gh CLI.
type RealGitHubClient struct {
	run runFunc
}

// NewGitHubClient returns a new RealGitHubClient.
func NewGitHubClient() *RealGitHubClient {
	return &RealGitHubClient{run: ghCmd}
}

func ghCmd(ctx context.Context, args ...string) (string, error) {
	out, err := exec.CommandContext(ctx, "gh", args...).Output()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			stderr := strings.TrimSpace(string(exitErr.Stderr))
			if strings.Contains(stderr, "HTTP 404") || strings.Contains(stderr, "Could not resolve to a Repository") {
				return "", fmt.Errorf("gh %s: %w", strings.Join(args, " "), ErrNotFound)
			}
			return "", fmt.Errorf("gh %s: %s", strings.Join(args, " "), stderr)
		}
		return "", fmt.Errorf("gh %s: %w", strings.Join(args, " "), err)
	}
	return strings.TrimSpace(string(out)), nil
}

type repoInfoRaw struct {
	Name  string `json:"name"`
	Owner struct {
		Login string `json:"login"`
	} `json:"owner"`
	Description     string `json:"description"`
	StargazerCount  int    `json:"stargazerCount"`
	PrimaryLanguage *struct {
		Name string `json:"name"`
	} `json:"primaryLanguage"`
	IsArchived bool   `json:"isArchived"`
	URL        string `json:"url"`
}

func (raw repoInfoRaw) info() RepoInfo {
	info := RepoInfo{
		Name:        raw.Name,
		Owner:       raw.Owner.Login,
		Description: raw.Description,
		Stars:       raw.StargazerCount,
		IsArchived:  raw.IsArchived,
		URL:         raw.URL,
	}
	if raw.PrimaryLanguage != nil {
		info.Language = raw.PrimaryLanguage.Name
	}
	return info
}

const repoFields = "name,owner,description,stargazerCount,primaryLanguage,isArchived,url"

func (c *RealGitHubClient) RepoInfo(ctx context.Context, owner, repo string) (*RepoInfo, error) {
	out, err := c.run(ctx, "repo", "view",
		fmt.Sprintf("%s/%s", owner, repo),
		"--json", repoFields,
	)
	if err != nil {
		return nil, err
	}

	var raw repoInfoRaw
	if err := json.Unmarshal([]byte(out), &raw); err != nil {
		return nil, fmt.Errorf("parse repo info: %w", err)
	}
	info := raw.info()
	if info.Owner == "" {
		info.Owner = owner
	}
	return &info, nil
}

type contentsRaw struct {
	Type     string `json:"type"`
	Path     string `json:"path"`
	Content  string `json:"content"`
	Encoding string `json:"encoding"`
}

// Contents fetches a file through the contents API. A missing file yields nil.
func (c *RealGitHubClient) Contents(ctx context.Context, owner, repo, path string) (*models.FileContent, error) {
	out, err := c.run(ctx, "api",
		fmt.Sprintf("repos/%s/%s/contents/%s", owner, repo, strings.TrimPrefix(path, "/")),
	)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	// Directories come back as a JSON array.
	if strings.HasPrefix(out, "[") {
		return nil, nil
	}

	var raw contentsRaw
	if err := json.Unmarshal([]byte(out), &raw); err != nil {
		return nil, fmt.Errorf("parse contents: %w", err)
	}
	if raw.Type != "" && raw.Type != "file" {
		return nil, nil
	}
	return &models.FileContent{Path: raw.Path, Content: raw.Content, Encoding: raw.Encoding}, nil
}

func (c *RealGitHubClient) ListRepos(ctx context.Context, owner string, limit int) ([]RepoInfo, error) {
	if limit <= 0 {
		limit = 1000
	}
	out, err := c.run(ctx, "repo", "list", owner,
		"--limit", fmt.Sprintf("%d", limit),
		"--json", repoFields,
	)
	if err != nil {
		return nil, err
	}

	var raws []repoInfoRaw
	if err := json.Unmarshal([]byte(out), &raws); err != nil {
		return nil, fmt.Errorf("parse repo list: %w", err)
	}
	repos := make([]RepoInfo, 0, len(raws))
	for _, raw := range raws {
		info := raw.info()
		if info.Owner == "" {
			info.Owner = owner
		}
		repos = append(repos, info)
	}
	return repos, nil
}

// Remote binds a GitHubClient to one repository so it can serve as a
// models.ContentSource.
type Remote struct {
	Client GitHubClient
	Owner  string
	Repo   string
}

// NewRemote returns a Remote for owner/repo.
func NewRemote(c GitHubClient, owner, repo string) *Remote {
	return &Remote{Client: c, Owner: owner, Repo: repo}
}

func (r *Remote) GetContents(ctx context.Context, path string) (*models.FileContent, error) {
	return r.Client.Contents(ctx, r.Owner, r.Repo, path)
}

// ExtractOwnerRepo parses "owner/repo", an HTTPS GitHub URL, or an SSH remote.
func ExtractOwnerRepo(remoteURL string) (owner, repo string, err error) {
	// Handle SSH: git@github.com:owner/repo.git
	if strings.HasPrefix(remoteURL, "git@") {
		parts := strings.SplitN(remoteURL, ":", 2)
		if len(parts) != 2 {
			return "", "", fmt.Errorf("cannot parse SSH remote: %s", remoteURL)
		}
		path := strings.TrimSuffix(parts[1], ".git")
		segments := strings.SplitN(path, "/", 2)
		if len(segments) != 2 {
			return "", "", fmt.Errorf("cannot parse owner/repo from: %s", remoteURL)
		}
		return segments[0], segments[1], nil
	}

	// Handle HTTPS: https://github.com/owner/repo.git
	trimmed := strings.TrimSuffix(strings.TrimSuffix(remoteURL, "/"), ".git")
	trimmed = strings.TrimPrefix(trimmed, "https://github.com/")
	trimmed = strings.TrimPrefix(trimmed, "http://github.com/")
	trimmed = strings.TrimPrefix(trimmed, "github.com/")
	segments := strings.Split(trimmed, "/")
	if len(segments) != 2 || segments[0] == "" || segments[1] == "" || strings.Contains(segments[0], ":") {
		return "", "", fmt.Errorf("cannot parse owner/repo from: %s", remoteURL)
	}
	return segments[0], segments[1], nil
}
