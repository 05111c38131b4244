package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joescharf/nest/internal/daemon"
	"github.com/joescharf/nest/internal/importer"
	"github.com/joescharf/nest/internal/output"
	"github.com/joescharf/nest/internal/server"
	"github.com/joescharf/nest/internal/slack"
	"github.com/joescharf/nest/internal/telemetry"
)

var serveForce bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP server in the foreground",
	Long: `Run the HTTP server: the REST API under /api/v1/, the admin under /a/,
the Slack events endpoint when Slack is configured, and static files in debug mode.

Use 'nest serve start' to run it in the background.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveRun(cmd.Context())
	},
}

var serveStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the server in the background",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveStartRun()
	},
}

var serveStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the background server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveStopRun()
	},
}

var serveStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show whether the background server is running",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveStatusRun()
	},
}

func init() {
	serveCmd.PersistentFlags().String("addr", ":8000", "address to listen on")
	serveCmd.PersistentFlags().Bool("debug", false, "serve static files and log at debug level")
	_ = viper.BindPFlag("server.addr", serveCmd.PersistentFlags().Lookup("addr"))
	_ = viper.BindPFlag("debug", serveCmd.PersistentFlags().Lookup("debug"))

	serveStopCmd.Flags().BoolVar(&serveForce, "force", false, "Kill the server instead of asking it to shut down")

	serveCmd.AddCommand(serveStartCmd)
	serveCmd.AddCommand(serveStopCmd)
	serveCmd.AddCommand(serveStatusCmd)
	rootCmd.AddCommand(serveCmd)
}

func pidFile() *daemon.PIDFile {
	return daemon.NewPIDFile(filepath.Join(viper.GetString("state_dir"), "nest-serve.pid"))
}

func serveLogPath() string {
	return filepath.Join(viper.GetString("state_dir"), "nest-serve.log")
}

// serverConfig maps viper keys onto the server configuration.
func serverConfig() server.Config {
	return server.Config{
		Addr:          viper.GetString("server.addr"),
		Debug:         viper.GetBool("debug"),
		StaticURL:     viper.GetString("static_url"),
		StaticRoot:    viper.GetString("static_root"),
		AdminUsername: viper.GetString("admin.username"),
		AdminPassword: viper.GetString("admin.password"),
		Slack: slack.Config{
			BotToken:      viper.GetString("slack.bot_token"),
			SigningSecret: viper.GetString("slack.signing_secret"),
			RedisAddr:     viper.GetString("redis.addr"),
		},
		ShutdownTimeout: viper.GetDuration("server.shutdown_timeout"),
	}
}

func serveRun(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	logger := newLogger()

	pf := pidFile()
	if err := pf.Acquire(os.Getpid()); err != nil {
		return err
	}
	defer func() { _ = pf.Release(os.Getpid()) }()

	s, err := getStore()
	if err != nil {
		return err
	}

	metrics, err := telemetry.New(ctx, telemetry.Config{
		Endpoint:       viper.GetString("otel.endpoint"),
		Insecure:       viper.GetBool("otel.insecure"),
		ServiceVersion: buildVersion,
	})
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metrics.Shutdown(shutdownCtx)
	}()

	cfg := serverConfig()
	handler, err := server.Routes(server.Deps{
		Config:   cfg,
		Store:    s,
		Importer: importer.New(s, newGitHubClient(), metrics, logger),
		Metrics:  metrics,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, shutdownSignals()...)
	defer stop()

	srv := server.New(cfg, handler)
	ui.Info("Serving nest at http://localhost%s", srv.Addr)
	return server.Run(ctx, srv, cfg.ShutdownTimeout, logger)
}

func serveStartRun() error {
	pf := pidFile()
	if pid, running := pf.IsRunning(); running {
		return fmt.Errorf("server already running (pid %d)", pid)
	}

	if dryRun {
		ui.DryRunMsg("Would start server on %s (log: %s)", viper.GetString("server.addr"), serveLogPath())
		return nil
	}

	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("locate executable: %w", err)
	}

	if err := os.MkdirAll(viper.GetString("state_dir"), 0o755); err != nil {
		return fmt.Errorf("create state directory: %w", err)
	}
	logFile, err := os.OpenFile(serveLogPath(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer logFile.Close()

	args := []string{"serve", "--addr", viper.GetString("server.addr")}
	if viper.GetBool("debug") {
		args = append(args, "--debug")
	}
	if cfgFile, _ := rootCmd.PersistentFlags().GetString("config"); cfgFile != "" {
		args = append(args, "--config", cfgFile)
	}

	child := exec.Command(exe, args...)
	child.Stdout = logFile
	child.Stderr = logFile
	setDaemonAttrs(child)
	if err := child.Start(); err != nil {
		return fmt.Errorf("start server: %w", err)
	}
	if err := pf.Acquire(child.Process.Pid); err != nil {
		return err
	}
	_ = child.Process.Release()

	ui.Success("Server started (pid %d) on %s", child.Process.Pid, output.Cyan(viper.GetString("server.addr")))
	ui.VerboseLog("Log: %s", serveLogPath())
	return nil
}

func serveStopRun() error {
	pf := pidFile()
	pid, running := pf.IsRunning()
	if !running {
		_ = pf.Release(pid)
		return errors.New("server not running")
	}

	if dryRun {
		ui.DryRunMsg("Would stop server (pid %d)", pid)
		return nil
	}

	sig := sigTERM()
	if serveForce {
		sig = sigKILL()
	}
	if err := pf.Signal(sig); err != nil {
		return fmt.Errorf("signal server: %w", err)
	}
	if serveForce {
		_ = pf.Release(pid)
	}

	ui.Success("Server stopped (pid %d)", pid)
	return nil
}

func serveStatusRun() error {
	pid, running := pidFile().IsRunning()
	if !running {
		ui.Info("Server: %s", output.Yellow("not running"))
		return nil
	}
	ui.Info("Server: %s (pid %d)", output.Green("running"), pid)
	ui.VerboseLog("Log: %s", serveLogPath())
	return nil
}
