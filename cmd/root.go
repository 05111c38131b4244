package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joescharf/nest/internal/git"
	"github.com/joescharf/nest/internal/output"
	"github.com/joescharf/nest/internal/store"
)

// Package-level shared dependencies, initialized in cobra.OnInitialize.
var (
	ui        *output.UI
	dataStore store.Store

	verbose bool
	dryRun  bool
)

// newGitHubClient builds the GitHub client, replaceable in tests.
var newGitHubClient = func() git.GitHubClient { return git.NewGitHubClient() }

var rootCmd = &cobra.Command{
	Use:   "nest",
	Short: "OWASP Nest - catalogue OWASP projects",
	Long: `nest catalogues OWASP projects.
It imports project metadata from the index.md front matter of each
project's GitHub repository and serves the catalogue over a REST API,
an admin interface, Slack and MCP.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	DisableAutoGenTag: true,
}

// Execute is the main entry point called from main.go.
func Execute(version, commit, date string) {
	buildVersion = version
	buildCommit = commit
	buildDate = date

	err := rootCmd.Execute()
	if dataStore != nil {
		_ = dataStore.Close()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig, initDeps)

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().BoolVarP(&dryRun, "dry-run", "n", false, "Show what would happen without making changes")
	rootCmd.PersistentFlags().String("config", "", "Config file (default ~/.config/nest/config.yaml)")
}

func initConfig() {
	// .env values become process env vars, so NEST_* entries flow into viper.
	_ = godotenv.Load()

	// If --config is explicitly set, use that file
	if cfgFile, _ := rootCmd.PersistentFlags().GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		dir, err := configDirFunc()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: cannot find home directory: %v\n", err)
			os.Exit(1)
		}
		viper.AddConfigPath(dir)
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("NEST")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	dir, _ := configDirFunc()
	setDefaults(dir)

	// Read config file if it exists (optional)
	_ = viper.ReadInConfig()
}

// setDefaults registers every config key with its default value.
func setDefaults(configDir string) {
	viper.SetDefault("state_dir", configDir)
	viper.SetDefault("db.driver", "sqlite")
	viper.SetDefault("db.path", filepath.Join(configDir, "nest.db"))
	viper.SetDefault("db.url", "")
	viper.SetDefault("debug", false)
	viper.SetDefault("static_url", "/static/")
	viper.SetDefault("static_root", "")
	viper.SetDefault("server.addr", ":8000")
	viper.SetDefault("server.shutdown_timeout", "10s")
	viper.SetDefault("admin.username", "")
	viper.SetDefault("admin.password", "")
	viper.SetDefault("slack.bot_token", "")
	viper.SetDefault("slack.signing_secret", "")
	viper.SetDefault("redis.addr", "")
	viper.SetDefault("github.owner", "OWASP")
	viper.SetDefault("github.prefix", "www-project-")
	viper.SetDefault("github.rate_limit", 1.0)
	viper.SetDefault("github.burst", 5)
	viper.SetDefault("otel.endpoint", "")
	viper.SetDefault("otel.insecure", true)
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "text")
}

func initDeps() {
	ui = output.New()
	ui.Verbose = verbose
	ui.DryRun = dryRun

	// The store is opened lazily so config/version work without a database.
}

func storeConfig() store.Config {
	return store.Config{
		Driver: viper.GetString("db.driver"),
		Path:   viper.GetString("db.path"),
		URL:    viper.GetString("db.url"),
	}
}

// getStore returns the shared store, initializing it on first call.
func getStore() (store.Store, error) {
	if dataStore != nil {
		return dataStore, nil
	}

	ctx := rootCmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	s, err := store.Open(ctx, storeConfig())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	dataStore = s
	return dataStore, nil
}

// newLogger builds the slog logger described by log.level and log.format.
func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	} else if err := level.UnmarshalText([]byte(viper.GetString("log.level"))); err != nil {
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if strings.EqualFold(viper.GetString("log.format"), "json") {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}
