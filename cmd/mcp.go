package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/joescharf/nest/internal/importer"
	"github.com/joescharf/nest/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP stdio server",
	Long: `Start an MCP (Model Context Protocol) server on stdio.

This lets MCP clients query the OWASP project catalogue. Configure with:

  {
    "mcpServers": {
      "nest": { "command": "nest", "args": ["mcp"] }
    }
  }

Available tools: nest_list_projects, nest_get_project,
nest_list_repositories, nest_import_project`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return mcpRun(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}

func mcpRun(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	s, err := getStore()
	if err != nil {
		return err
	}
	// stdout carries the protocol, so logs go to stderr only.
	im := importer.New(s, newGitHubClient(), nil, newLogger())
	return mcp.NewServer(s, im, buildVersion).ServeStdio(ctx)
}
