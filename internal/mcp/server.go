package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/joescharf/nest/internal/git"
	"github.com/joescharf/nest/internal/health"
	"github.com/joescharf/nest/internal/importer"
	"github.com/joescharf/nest/internal/models"
	"github.com/joescharf/nest/internal/store"
)

// Server exposes the project catalogue as MCP tools.
type Server struct {
	store    store.Store
	importer *importer.Importer
	version  string
}

// NewServer creates the MCP server wrapper. im may be nil, which disables
// the import tool.
func NewServer(s store.Store, im *importer.Importer, version string) *Server {
	if version == "" {
		version = "dev"
	}
	return &Server{store: s, importer: im, version: version}
}

// MCPServer returns a configured mcp-go server with all tools registered.
func (s *Server) MCPServer() *server.MCPServer {
	srv := server.NewMCPServer("nest", s.version, server.WithToolCapabilities(true))

	srv.AddTool(s.listProjectsTool())
	srv.AddTool(s.getProjectTool())
	srv.AddTool(s.listRepositoriesTool())
	if s.importer != nil {
		srv.AddTool(s.importProjectTool())
	}

	return srv
}

// ServeStdio starts the stdio transport, blocking until ctx is cancelled.
func (s *Server) ServeStdio(ctx context.Context) error {
	stdioServer := server.NewStdioServer(s.MCPServer())
	return stdioServer.Listen(ctx, os.Stdin, os.Stdout)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// nest_list_projects
func (s *Server) listProjectsTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("nest_list_projects",
		mcp.WithDescription("List OWASP projects in the catalogue. Returns a JSON array with key, name, description, level, type and tags."),
		mcp.WithString("level", mcp.Description("Filter by level: incubator, lab, production, flagship or unknown")),
		mcp.WithString("type", mcp.Description("Filter by type: code, documentation or unknown")),
		mcp.WithString("tag", mcp.Description("Only projects carrying this tag")),
	)
	return tool, s.handleListProjects
}

func (s *Server) handleListProjects(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	filter := store.ProjectListFilter{Tag: request.GetString("tag", "")}
	if v := request.GetString("level", ""); v != "" {
		level, err := models.ParseProjectLevel(v)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		filter.Level = level
	}
	if v := request.GetString("type", ""); v != "" {
		typ, err := models.ParseProjectType(v)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		filter.Type = typ
	}

	projects, err := s.store.ListProjects(ctx, filter)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list projects: %v", err)), nil
	}
	if projects == nil {
		projects = []*models.Project{}
	}
	return jsonResult(projects)
}

// nest_get_project
func (s *Server) getProjectTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("nest_get_project",
		mcp.WithDescription("Get one project by key, including its GitHub repository when linked."),
		mcp.WithString("key", mcp.Required(), mcp.Description("Project key, e.g. www-project-zap")),
	)
	return tool, s.handleGetProject
}

type projectDetail struct {
	*models.Project
	Repository *models.Repository `json:"repository,omitempty"`
	Health     *health.Score      `json:"health"`
}

func (s *Server) handleGetProject(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	key, err := request.RequireString("key")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: key"), nil
	}

	p, err := s.store.GetProjectByKey(ctx, key)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("project not found: %s", key)), nil
	}

	out := projectDetail{Project: p}
	if p.RepositoryID != nil {
		// Best-effort: a dangling reference still returns the project.
		if repo, err := s.store.GetRepository(ctx, *p.RepositoryID); err == nil {
			out.Repository = repo
		}
	}
	out.Health = health.NewScorer().Score(p, out.Repository)
	return jsonResult(out)
}

// nest_list_repositories
func (s *Server) listRepositoriesTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("nest_list_repositories",
		mcp.WithDescription("List GitHub repositories known to the catalogue."),
	)
	return tool, s.handleListRepositories
}

func (s *Server) handleListRepositories(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	repos, err := s.store.ListRepositories(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list repositories: %v", err)), nil
	}
	if repos == nil {
		repos = []*models.Repository{}
	}
	return jsonResult(repos)
}

// nest_import_project
func (s *Server) importProjectTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("nest_import_project",
		mcp.WithDescription("Import or refresh a project from the index.md front matter of its GitHub repository."),
		mcp.WithString("repository", mcp.Required(), mcp.Description("GitHub repository as owner/name or URL")),
	)
	return tool, s.handleImportProject
}

func (s *Server) handleImportProject(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ref, err := request.RequireString("repository")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: repository"), nil
	}
	owner, name, err := git.ExtractOwnerRepo(ref)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	res, p, err := s.importer.Project(ctx, owner, name)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("import failed: %v", err)), nil
	}
	return jsonResult(map[string]any{"result": res, "project": p})
}
