package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/joescharf/nest/internal/models"
	"github.com/joescharf/nest/internal/output"
)

var repositoryJSON bool

var repositoryCmd = &cobra.Command{
	Use:     "repository",
	Aliases: []string{"repo"},
	Short:   "Inspect imported GitHub repositories",
}

var repositoryListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List repositories",
	RunE: func(cmd *cobra.Command, args []string) error {
		return repositoryListRun()
	},
}

func init() {
	repositoryListCmd.Flags().BoolVar(&repositoryJSON, "json", false, "Output JSON")
	repositoryCmd.AddCommand(repositoryListCmd)
	rootCmd.AddCommand(repositoryCmd)
}

func repositoryListRun() error {
	s, err := getStore()
	if err != nil {
		return err
	}

	repos, err := s.ListRepositories(context.Background())
	if err != nil {
		return err
	}

	if repositoryJSON {
		if repos == nil {
			repos = []*models.Repository{}
		}
		return ui.JSON(repos)
	}

	if len(repos) == 0 {
		ui.Info("No repositories imported yet.")
		return nil
	}

	table := ui.Table([]string{"Repository", "Language", "Stars", "Archived"})
	for _, r := range repos {
		archived := ""
		if r.IsArchived {
			archived = output.Yellow("yes")
		}
		_ = table.Append([]string{
			output.Cyan(r.Key),
			r.Language,
			fmt.Sprintf("%d", r.Stars),
			archived,
		})
	}
	return table.Render()
}
