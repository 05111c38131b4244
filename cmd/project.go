package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/joescharf/nest/internal/git"
	"github.com/joescharf/nest/internal/health"
	"github.com/joescharf/nest/internal/importer"
	"github.com/joescharf/nest/internal/models"
	"github.com/joescharf/nest/internal/output"
	"github.com/joescharf/nest/internal/store"
)

var (
	projectLevel string
	projectType  string
	projectTag   string
	projectJSON  bool
)

var projectCmd = &cobra.Command{
	Use:   "project",
	Short: "Manage catalogued projects",
	Long:  "List, show, import and remove OWASP projects.",
}

var projectListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List projects",
	RunE: func(cmd *cobra.Command, args []string) error {
		return projectListRun()
	},
}

var projectShowCmd = &cobra.Command{
	Use:   "show <key>",
	Short: "Show detailed project information",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return projectShowRun(args[0])
	},
}

var projectImportCmd = &cobra.Command{
	Use:   "import <owner/repo>",
	Short: "Import a project from its GitHub repository",
	Long: `Import or refresh a project from the front matter of index.md in its
GitHub repository. Accepts owner/repo, an HTTPS URL or an SSH remote.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return projectImportRun(args[0])
	},
}

var projectRemoveCmd = &cobra.Command{
	Use:     "remove <key>",
	Aliases: []string{"rm"},
	Short:   "Remove a project from the catalogue",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return projectRemoveRun(args[0])
	},
}

func init() {
	projectListCmd.Flags().StringVar(&projectLevel, "level", "", "Filter by level (incubator, lab, production, flagship, unknown)")
	projectListCmd.Flags().StringVar(&projectType, "type", "", "Filter by type (code, documentation, unknown)")
	projectListCmd.Flags().StringVar(&projectTag, "tag", "", "Filter by tag")
	projectListCmd.Flags().BoolVar(&projectJSON, "json", false, "Output JSON")
	projectShowCmd.Flags().BoolVar(&projectJSON, "json", false, "Output JSON")

	projectCmd.AddCommand(projectListCmd)
	projectCmd.AddCommand(projectShowCmd)
	projectCmd.AddCommand(projectImportCmd)
	projectCmd.AddCommand(projectRemoveCmd)
	rootCmd.AddCommand(projectCmd)
}

func projectFilter() (store.ProjectListFilter, error) {
	filter := store.ProjectListFilter{Tag: projectTag}
	if projectLevel != "" {
		level, err := models.ParseProjectLevel(projectLevel)
		if err != nil {
			return filter, err
		}
		filter.Level = level
	}
	if projectType != "" {
		typ, err := models.ParseProjectType(projectType)
		if err != nil {
			return filter, err
		}
		filter.Type = typ
	}
	return filter, nil
}

func projectListRun() error {
	filter, err := projectFilter()
	if err != nil {
		return err
	}
	s, err := getStore()
	if err != nil {
		return err
	}

	projects, err := s.ListProjects(context.Background(), filter)
	if err != nil {
		return err
	}

	if projectJSON {
		if projects == nil {
			projects = []*models.Project{}
		}
		return ui.JSON(projects)
	}

	if len(projects) == 0 {
		ui.Info("No projects found. Use 'nest project import <owner/repo>' or 'nest sync' to get started.")
		return nil
	}

	table := ui.Table([]string{"Key", "Name", "Level", "Type", "Tags"})
	for _, p := range projects {
		_ = table.Append([]string{
			output.Cyan(p.Key),
			output.Truncate(p.Name, 40),
			output.LevelColor(string(p.Level)),
			string(p.Type),
			output.Truncate(strings.Join(p.Tags, ", "), 40),
		})
	}
	return table.Render()
}

func projectShowRun(key string) error {
	s, err := getStore()
	if err != nil {
		return err
	}
	ctx := context.Background()

	p, err := s.GetProjectByKey(ctx, key)
	if err != nil {
		return err
	}

	var repo *models.Repository
	if p.RepositoryID != nil {
		repo, _ = s.GetRepository(ctx, *p.RepositoryID)
	}

	score := health.NewScorer().Score(p, repo)

	if projectJSON {
		return ui.JSON(struct {
			*models.Project
			Repository *models.Repository `json:"repository,omitempty"`
			Health     *health.Score      `json:"health"`
		}{p, repo, score})
	}

	fmt.Fprintf(ui.Out, "%s\n", output.Cyan(p.Name))
	fmt.Fprintf(ui.Out, "  Key:        %s\n", p.Key)
	if p.Description != "" {
		fmt.Fprintf(ui.Out, "  Desc:       %s\n", p.Description)
	}
	fmt.Fprintf(ui.Out, "  Level:      %s\n", output.LevelColor(string(p.Level)))
	fmt.Fprintf(ui.Out, "  Type:       %s\n", p.Type)
	if len(p.Tags) > 0 {
		fmt.Fprintf(ui.Out, "  Tags:       %s\n", strings.Join(p.Tags, ", "))
	}
	if repo != nil {
		fmt.Fprintf(ui.Out, "  Repository: %s\n", repo.URL)
		fmt.Fprintf(ui.Out, "  Stars:      %d\n", repo.Stars)
		if repo.IsArchived {
			fmt.Fprintf(ui.Out, "  Archived:   %s\n", output.Yellow("yes"))
		}
	}
	fmt.Fprintf(ui.Out, "  Health:     %d/100\n", score.Total)
	fmt.Fprintf(ui.Out, "  Updated:    %s\n", p.UpdatedAt.Local().Format("2006-01-02 15:04"))
	return nil
}

func projectImportRun(ref string) error {
	owner, name, err := git.ExtractOwnerRepo(ref)
	if err != nil {
		return err
	}

	if dryRun {
		ui.DryRunMsg("Would import project from %s/%s", owner, name)
		return nil
	}

	s, err := getStore()
	if err != nil {
		return err
	}

	im := importer.New(s, newGitHubClient(), nil, newLogger())
	res, p, err := im.Project(context.Background(), owner, name)
	if errors.Is(err, git.ErrNotFound) {
		return fmt.Errorf("repository %s/%s not found on GitHub", owner, name)
	}
	if err != nil {
		return fmt.Errorf("import %s/%s: %w", owner, name, err)
	}

	ui.Success("Imported %s (%s): %s", output.Cyan(p.Key), p.Name, output.OutcomeColor(res.Outcome))
	ui.VerboseLog("Level: %s, type: %s, tags: %s", p.Level, p.Type, strings.Join(p.Tags, ", "))
	return nil
}

func projectRemoveRun(key string) error {
	s, err := getStore()
	if err != nil {
		return err
	}
	ctx := context.Background()

	p, err := s.GetProjectByKey(ctx, key)
	if err != nil {
		return err
	}

	if dryRun {
		ui.DryRunMsg("Would remove project: %s", p.Key)
		return nil
	}

	if err := s.DeleteProject(ctx, p.ID); err != nil {
		return fmt.Errorf("remove project: %w", err)
	}

	ui.Success("Removed project: %s", output.Cyan(p.Key))
	return nil
}
