package daemon

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/openaviation/grievance-insights/internal/common/constants"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

type (
	AppConfig   = appConfig
	CacheConfig = cacheConfig
)

// Config returns the configuration of the app.
func (a *App) Config() AppConfig {
	return a.config
}

// Addr returns the address the dashboard listens on.
func (a *App) Addr() string {
	a.WaitReady()
	if a.daemon == nil {
		return ""
	}
	return a.daemon.Addr()
}

// NewForTests creates a new App instance reading conf from a generated configuration file.
func NewForTests(t *testing.T, conf *AppConfig, args ...string) *App {
	t.Helper()

	p := GenerateTestConfig(t, conf)
	argsWithConf := append([]string{"--config", p}, args...)

	a, err := New()
	require.NoError(t, err, "Setup: failed to create app")
	a.cmd.SetArgs(argsWithConf)
	return a
}

// GenerateTestConfig generates a temporary config file for testing.
//
// Zero timeouts would override the flag defaults, so they are replaced.
func GenerateTestConfig(t *testing.T, origConf *AppConfig) string {
	t.Helper()

	var conf appConfig
	if origConf != nil {
		conf = *origConf
	}

	if conf.Verbosity == 0 {
		conf.Verbosity = 2
	}
	if conf.Daemon.ReadTimeout == 0 {
		conf.Daemon.ReadTimeout = 5 * time.Second
	}
	if conf.Daemon.WriteTimeout == 0 {
		conf.Daemon.WriteTimeout = 10 * time.Second
	}
	if conf.Daemon.RequestTimeout == 0 {
		conf.Daemon.RequestTimeout = 5 * time.Second
	}
	if conf.Daemon.ListenHost == "" {
		conf.Daemon.ListenHost = "localhost"
	}
	if conf.Warehouse.Destination == "" {
		conf.Warehouse.Destination = "postgres"
	}
	if conf.Warehouse.Table == "" {
		conf.Warehouse.Table = constants.DefaultDatasetName
	}

	d, err := yaml.Marshal(conf)
	require.NoError(t, err, "Setup: failed to marshal config for tests")

	confPath := filepath.Join(t.TempDir(), "testconfig.yaml")
	require.NoError(t, os.WriteFile(confPath, d, 0600), "Setup: failed to write config for tests")

	return confPath
}

// SetArgs set some arguments on root command for tests.
func (a *App) SetArgs(args ...string) {
	a.cmd.SetArgs(args)
}

// SetSilenceUsage set the SilenceUsage flag on root command for tests.
func (a *App) SetSilenceUsage(silence bool) {
	a.cmd.SilenceUsage = silence
}
