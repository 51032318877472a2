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
	AppConfig = appConfig
)

// Config returns the configuration of the app.
func (a *App) Config() AppConfig {
	return a.config
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
// Zero values would override the flag defaults, so they are replaced by the defaults.
func GenerateTestConfig(t *testing.T, origConf *AppConfig) string {
	t.Helper()

	var conf appConfig
	if origConf != nil {
		conf = *origConf
	}

	if conf.Verbosity == 0 {
		conf.Verbosity = 2
	}
	if conf.Source.BaseURL == "" {
		conf.Source.BaseURL = constants.DefaultAPIURL
	}
	if conf.Source.Timeout == 0 {
		conf.Source.Timeout = 5 * time.Second
	}
	if conf.Source.PageSize == 0 {
		conf.Source.PageSize = constants.DefaultPageSize
	}
	if conf.Source.MaxOffset == 0 {
		conf.Source.MaxOffset = constants.DefaultMaxOffset
	}
	if conf.WriteMode == "" {
		conf.WriteMode = "append"
	}
	if conf.Interval == 0 {
		conf.Interval = time.Hour
	}
	if conf.Warehouse.Destination == "" {
		conf.Warehouse.Destination = "postgres"
	}
	if conf.Warehouse.Table == "" {
		conf.Warehouse.Table = constants.DefaultDatasetName
	}
	if conf.MetricsConfig.ReadTimeout == 0 {
		conf.MetricsConfig.ReadTimeout = 5 * time.Second
	}
	if conf.MetricsConfig.WriteTimeout == 0 {
		conf.MetricsConfig.WriteTimeout = 5 * time.Second
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
