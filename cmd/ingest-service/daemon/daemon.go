// Package daemon provides the ingest service daemon loading the aviation grievances into the warehouse.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/openaviation/grievance-insights/internal/common/cli"
	"github.com/openaviation/grievance-insights/internal/common/constants"
	"github.com/openaviation/grievance-insights/internal/common/metrics"
	"github.com/openaviation/grievance-insights/internal/ingest"
	"github.com/openaviation/grievance-insights/internal/ingest/config"
	"github.com/openaviation/grievance-insights/internal/ingest/pipeline"
	"github.com/openaviation/grievance-insights/internal/ingest/workers"
	"github.com/openaviation/grievance-insights/internal/warehouse"
	"github.com/openaviation/grievance-insights/internal/warehouse/destination"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// App represents the application.
type App struct {
	cmd    *cobra.Command
	viper  *viper.Viper
	config appConfig
	log    *slog.Logger

	daemon *ingest.Service
	cancel context.CancelFunc

	ready     chan struct{}
	readyOnce sync.Once
}

// appConfig holds the configuration for the application.
type appConfig struct {
	Verbosity int
	JSONLogs  bool

	Source     ingest.SourceConfig
	APIKeyFile string
	WriteMode  string
	Warehouse  destination.Config

	Interval       time.Duration
	Once           bool
	DatasetsConfig string

	MetricsConfig metrics.Config
	MigrationsDir string
}

// LogValue keeps the credentials out of the logs.
func (c appConfig) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("verbosity", c.Verbosity),
		slog.String("api_url", c.Source.BaseURL),
		slog.Bool("api_key_set", c.Source.APIKey != "" || c.APIKeyFile != ""),
		slog.Int("page_size", c.Source.PageSize),
		slog.Int("max_offset", c.Source.MaxOffset),
		slog.String("write_mode", c.WriteMode),
		slog.String("destination", c.Warehouse.Destination),
		slog.Duration("interval", c.Interval),
		slog.Bool("once", c.Once),
		slog.String("datasets_config", c.DatasetsConfig),
	)
}

// New creates a new App instance with default values.
func New() (*App, error) {
	a := App{
		ready: make(chan struct{}),
		log:   cli.NewLogger(0, false, os.Stderr),
	}

	a.cmd = &cobra.Command{
		Use:   constants.IngestServiceCmdName,
		Short: "Aviation grievances ingest service",
		Long: `Aviation grievances ingest service pages through the data.gov.in grievances resources,
normalizes every record and loads them into BigQuery or a PostgreSQL warehouse.`,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Command parsing has been successful. Returns to not print usage anymore.
			a.cmd.SilenceUsage = true
			// Set verbosity before loading config
			a.log = cli.NewLogger(a.config.Verbosity, a.config.JSONLogs, os.Stderr)
			if err := cli.InitViperConfig(a.log, constants.IngestServiceCmdName, a.cmd, a.viper); err != nil {
				return err
			}
			if err := cli.Unmarshal(a.viper, &a.config); err != nil {
				return err
			}

			a.log = cli.NewLogger(a.config.Verbosity, a.config.JSONLogs, os.Stderr)
			a.log.Info("got app config", "config", a.config)
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			a.cmd.SilenceUsage = true

			return a.run()
		},
	}
	a.viper = viper.New()
	a.cmd.CompletionOptions.HiddenDefaultCmd = true

	installRootCmd(&a)
	installMigrateCmd(&a)
	cli.InstallConfigFlag(a.cmd)

	if err := a.viper.BindPFlags(a.cmd.PersistentFlags()); err != nil {
		return nil, err
	}

	a.cmd.AddCommand(cli.NewVersionCmd(constants.IngestServiceCmdName))

	return &a, nil
}

func installRootCmd(app *App) {
	cmd := app.cmd

	cmd.PersistentFlags().CountVarP(&app.config.Verbosity, "verbose", "v", "issue INFO (-v), DEBUG (-vv)")
	cmd.PersistentFlags().BoolVar(&app.config.JSONLogs, "json-logs", false, "enable JSON formatted logs")

	// Source flags
	cmd.Flags().StringVar(&app.config.Source.BaseURL, "api-url", constants.DefaultAPIURL, "base URL of the data.gov.in API")
	cmd.Flags().StringVar(&app.config.Source.APIKey, "api-key", "", "data.gov.in API key")
	cmd.Flags().StringVar(&app.config.APIKeyFile, "api-key-file", "", "file holding the data.gov.in API key, as mounted from a secret store")
	cmd.Flags().DurationVar(&app.config.Source.Timeout, "api-timeout", 30*time.Second, "timeout of a single API request")
	cmd.Flags().IntVar(&app.config.Source.PageSize, "page-size", constants.DefaultPageSize, "number of records requested per page")
	cmd.Flags().IntVar(&app.config.Source.MaxOffset, "max-offset", constants.DefaultMaxOffset, "offset ceiling of a single run")
	cmd.MarkFlagsMutuallyExclusive("api-key", "api-key-file")

	// Daemon flags
	cmd.Flags().StringVar(&app.config.WriteMode, "write-mode", string(warehouse.Append), "how a run treats the rows already loaded: append or replace")
	cmd.Flags().DurationVar(&app.config.Interval, "interval", 24*time.Hour, "delay between two runs of a dataset")
	cmd.Flags().BoolVar(&app.config.Once, "once", false, "load every dataset once and exit")
	cmd.Flags().StringVarP(&app.config.DatasetsConfig, "datasets-config", "c", "", "path to the watched datasets file, only the aviation grievances resource when empty")

	// Metrics server flags
	cmd.Flags().DurationVar(&app.config.MetricsConfig.ReadTimeout, "read-timeout", 5*time.Second, "read timeout for the metrics HTTP server")
	cmd.Flags().DurationVar(&app.config.MetricsConfig.WriteTimeout, "write-timeout", 10*time.Second, "write timeout for the metrics HTTP server")
	cmd.Flags().StringVar(&app.config.MetricsConfig.Host, "metrics-host", "", "host for the metrics endpoint")
	cmd.Flags().IntVar(&app.config.MetricsConfig.Port, "metrics-port", 2113, "port for the metrics endpoint")

	// The migrate subcommand reads the database flags too.
	destination.AddFlags(cmd.PersistentFlags(), &app.config.Warehouse)

	if err := cmd.MarkFlagFilename("datasets-config"); err != nil {
		panic(fmt.Sprintf("failed to mark datasets-config flag as filename: %v", err))
	}
	if err := cmd.MarkFlagFilename("api-key-file"); err != nil {
		panic(fmt.Sprintf("failed to mark api-key-file flag as filename: %v", err))
	}
}

// Run executes the command and associated process, returning an error if any.
func (a *App) Run() error {
	return a.cmd.Execute()
}

// UsageError returns if the error is a command parsing or runtime one.
func (a *App) UsageError() bool {
	return !a.cmd.SilenceUsage
}

// Hup prints all goroutine stack traces and return false to signal you shouldn't quit.
func (a *App) Hup() (shouldQuit bool) {
	buf := make([]byte, 1<<16)
	runtime.Stack(buf, true)
	fmt.Printf("%s", buf)
	return false
}

// Quit gracefully shuts down the daemon.
func (a *App) Quit() {
	a.WaitReady()
	if a.daemon != nil {
		a.daemon.Quit(false)
	}
	if a.cancel != nil {
		a.cancel()
	}
}

// WaitReady waits for the daemon to be ready.
func (a *App) WaitReady() {
	<-a.ready
}

// RootCmd returns the root command.
func (a *App) RootCmd() cobra.Command {
	return *a.cmd
}

func (a *App) setReady() {
	a.readyOnce.Do(func() { close(a.ready) })
}

func (a *App) run() (err error) {
	// Quit must never block, even when the daemon failed to start.
	defer a.setReady()

	mode, err := warehouse.ParseWriteMode(a.config.WriteMode)
	if err != nil {
		return err
	}
	if err := a.readAPIKey(); err != nil {
		return err
	}
	cm, err := a.datasets()
	if err != nil {
		return err
	}

	wh, err := destination.Open(context.Background(), a.config.Warehouse, destination.WithLogger(a.log))
	if err != nil {
		return err
	}
	defer func() {
		if cErr := wh.Close(); cErr != nil {
			a.log.Warn("Failed to close the warehouse", "err", cErr)
		}
	}()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	pm, err := pipeline.NewMetrics(registry)
	if err != nil {
		return fmt.Errorf("failed to create pipeline metrics: %v", err)
	}
	runner, err := ingest.NewRunner(a.config.Source, wh, mode,
		ingest.WithPipelineMetrics(pm),
		ingest.WithRunnerLogger(a.log))
	if err != nil {
		return fmt.Errorf("failed to create dataset runner: %v", err)
	}

	workerPool, err := workers.New(cm, runner, registry,
		workers.WithInterval(a.config.Interval),
		workers.WithLogger(a.log))
	if err != nil {
		return fmt.Errorf("failed to create worker pool: %v", err)
	}

	if a.config.Once {
		return a.runOnce(workerPool)
	}

	metricsServer := metrics.New(a.config.MetricsConfig, registry)

	a.daemon = ingest.New(context.Background(), workerPool, metricsServer, ingest.WithLogger(a.log))
	a.setReady()

	return a.daemon.Run()
}

func (a *App) runOnce(pool *workers.Pool) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	a.cancel = cancel
	a.setReady()

	infos, err := pool.RunOnce(ctx)
	for _, info := range infos {
		a.log.Info("Dataset loaded", "table", info.Table, "run_id", info.RunID, "records", info.Records,
			"pages", info.Pages, "duration", info.FinishedAt.Sub(info.StartedAt))
	}
	return err
}

// readAPIKey reads the API key from its file, if one is configured.
func (a *App) readAPIKey() error {
	if a.config.APIKeyFile == "" {
		return nil
	}
	if a.config.Source.APIKey != "" {
		return errors.New("API key and API key file are mutually exclusive")
	}

	d, err := os.ReadFile(a.config.APIKeyFile)
	if err != nil {
		return fmt.Errorf("failed to read API key file: %v", err)
	}
	key := strings.TrimSpace(string(d))
	if key == "" {
		return fmt.Errorf("API key file %s is empty", a.config.APIKeyFile)
	}
	a.config.Source.APIKey = key
	return nil
}

type datasetsManager interface {
	Watch(context.Context) (<-chan struct{}, <-chan error, error)
	Datasets() []config.Dataset
}

// datasets returns the watched datasets file, or the aviation grievances resource alone.
func (a *App) datasets() (datasetsManager, error) {
	if a.config.DatasetsConfig == "" {
		return config.NewStatic(config.Dataset{
			Name:       constants.DefaultDatasetName,
			ResourceID: constants.DefaultResourceID,
		})
	}

	path, err := filepath.Abs(a.config.DatasetsConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path for datasets file: %v", err)
	}
	cm := config.New(path, config.WithLogger(a.log))
	if err := cm.Load(); err != nil {
		return nil, err
	}
	return cm, nil
}
