package cmd

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/nest/internal/daemon"
)

func TestPidFile_Path(t *testing.T) {
	dir := testEnv(t)

	pf := pidFile()
	assert.Equal(t, filepath.Join(dir, "nest-serve.pid"), pf.Path)
}

func TestServeLogPath(t *testing.T) {
	dir := testEnv(t)
	assert.Equal(t, filepath.Join(dir, "nest-serve.log"), serveLogPath())
}

func TestServerConfig(t *testing.T) {
	testEnv(t)
	viper.Set("debug", true)
	viper.Set("admin.username", "admin")
	viper.Set("slack.bot_token", "xoxb")
	viper.Set("slack.signing_secret", "secret")
	viper.Set("redis.addr", "localhost:6379")

	cfg := serverConfig()
	assert.Equal(t, ":8000", cfg.Addr)
	assert.True(t, cfg.Debug)
	assert.Equal(t, "/static/", cfg.StaticURL)
	assert.Equal(t, "admin", cfg.AdminUsername)
	assert.Equal(t, "localhost:6379", cfg.Slack.RedisAddr)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
}

func TestServeStatusRun_NotRunning(t *testing.T) {
	testEnv(t)

	// No PID file exists, so status should show "not running" without error.
	assert.NoError(t, serveStatusRun())
}

func TestServeStopRun_NotRunning(t *testing.T) {
	testEnv(t)

	err := serveStopRun()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not running")
}

func TestServeStartRun_AlreadyRunning(t *testing.T) {
	dir := testEnv(t)

	// Record the current (live) process as the server.
	pf := daemon.NewPIDFile(filepath.Join(dir, "nest-serve.pid"))
	require.NoError(t, pf.Acquire(os.Getpid()))
	t.Cleanup(func() { _ = os.Remove(pf.Path) })

	err := serveStartRun()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already running")
}

func TestServeStartRun_DryRun(t *testing.T) {
	dir := testEnv(t)
	dryRun = true
	ui.DryRun = true
	defer func() { dryRun = false }()

	require.NoError(t, serveStartRun())
	_, err := os.Stat(filepath.Join(dir, "nest-serve.pid"))
	assert.True(t, os.IsNotExist(err))
}
