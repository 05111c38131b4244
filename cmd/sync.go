package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joescharf/nest/internal/importer"
	"github.com/joescharf/nest/internal/output"
)

var syncLimit int

var syncCmd = &cobra.Command{
	Use:   "sync [owner]",
	Short: "Import every project repository of a GitHub owner",
	Long: `Import every repository of a GitHub owner whose name starts with the
configured prefix (github.prefix, default "www-project-"). Archived
repositories are skipped. The owner defaults to github.owner.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		owner := viper.GetString("github.owner")
		if len(args) > 0 {
			owner = args[0]
		}
		return syncRun(owner)
	},
}

func init() {
	syncCmd.Flags().String("prefix", "www-project-", "Repository name prefix")
	syncCmd.Flags().Float64("rate", 1, "GitHub requests per second (0 = unlimited)")
	syncCmd.Flags().IntVar(&syncLimit, "limit", 0, "Maximum repositories to list (0 = gh default of 1000)")
	_ = viper.BindPFlag("github.prefix", syncCmd.Flags().Lookup("prefix"))
	_ = viper.BindPFlag("github.rate_limit", syncCmd.Flags().Lookup("rate"))
	rootCmd.AddCommand(syncCmd)
}

func syncOptions(owner string) importer.Options {
	return importer.Options{
		Owner:     owner,
		Prefix:    viper.GetString("github.prefix"),
		Limit:     syncLimit,
		RateLimit: viper.GetFloat64("github.rate_limit"),
		Burst:     viper.GetInt("github.burst"),
	}
}

func syncRun(owner string) error {
	if owner == "" {
		return fmt.Errorf("no GitHub owner given (pass one or set github.owner)")
	}
	opts := syncOptions(owner)

	if dryRun {
		ui.DryRunMsg("Would import %s/%s* repositories", opts.Owner, opts.Prefix)
		return nil
	}

	s, err := getStore()
	if err != nil {
		return err
	}

	im := importer.New(s, newGitHubClient(), nil, newLogger())
	result, err := im.All(context.Background(), opts)
	if err != nil {
		return err
	}

	if verbose {
		for _, r := range result.Results {
			line := fmt.Sprintf("%s: %s", r.Repository, output.OutcomeColor(r.Outcome))
			if r.Error != "" {
				line += " (" + r.Error + ")"
			}
			ui.VerboseLog("%s", line)
		}
	}

	ui.Success("Synced %d repositories: %d created, %d updated, %d unchanged, %d skipped, %d failed",
		result.Total, result.Created, result.Updated, result.Unchanged, result.Skipped, result.Failed)
	if result.Failed > 0 {
		ui.Warning("%d repositories failed to import (use --verbose for details)", result.Failed)
	}
	return nil
}
