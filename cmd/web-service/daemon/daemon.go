// Package daemon provides the web service daemon serving the grievance dashboard.
package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/openaviation/grievance-insights/internal/common/cli"
	"github.com/openaviation/grievance-insights/internal/common/constants"
	"github.com/openaviation/grievance-insights/internal/dashboard"
	"github.com/openaviation/grievance-insights/internal/warehouse/destination"
	"github.com/openaviation/grievance-insights/internal/webservice"
	"github.com/openaviation/grievance-insights/internal/webservice/handlers"
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

	daemon *webservice.Server
	cache  atomic.Pointer[dashboard.Cached]

	ready     chan struct{}
	readyOnce sync.Once
}

// cacheConfig holds the time-to-live of each dashboard query kind.
type cacheConfig struct {
	DateRangeTTL  time.Duration
	AirlinesTTL   time.Duration
	GrievancesTTL time.Duration
}

// appConfig holds the configuration for the application.
type appConfig struct {
	Verbosity int
	JSONLogs  bool

	Daemon    webservice.StaticConfig
	Warehouse destination.Config
	Cache     cacheConfig
}

// LogValue keeps the credentials out of the logs.
func (c appConfig) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("verbosity", c.Verbosity),
		slog.String("listen_host", c.Daemon.ListenHost),
		slog.Int("listen_port", c.Daemon.ListenPort),
		slog.String("destination", c.Warehouse.Destination),
		slog.String("table", c.Warehouse.Table),
		slog.Duration("grievances_ttl", c.Cache.GrievancesTTL),
	)
}

// New creates a new App instance with default values.
func New() (*App, error) {
	a := App{
		ready: make(chan struct{}),
		log:   cli.NewLogger(0, false, os.Stderr),
	}

	a.cmd = &cobra.Command{
		Use:           constants.WebServiceCmdName,
		Short:         "Aviation grievances dashboard",
		Long:          "Aviation grievances dashboard serves filterable grievance analytics read from the warehouse, with CSV and Markdown exports.",
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Command parsing has been successful. Returns to not print usage anymore.
			a.cmd.SilenceUsage = true
			// Set verbosity before loading config
			a.log = cli.NewLogger(a.config.Verbosity, a.config.JSONLogs, os.Stderr)
			if err := cli.InitViperConfig(a.log, constants.WebServiceCmdName, a.cmd, a.viper); err != nil {
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
	cli.InstallConfigFlag(a.cmd)

	if err := a.viper.BindPFlags(a.cmd.PersistentFlags()); err != nil {
		return nil, err
	}

	a.cmd.AddCommand(cli.NewVersionCmd(constants.WebServiceCmdName))

	return &a, nil
}

func installRootCmd(app *App) {
	cmd := app.cmd

	cmd.PersistentFlags().CountVarP(&app.config.Verbosity, "verbose", "v", "issue INFO (-v), DEBUG (-vv)")
	cmd.PersistentFlags().BoolVar(&app.config.JSONLogs, "json-logs", false, "enable JSON formatted logs")

	// Server flags
	cmd.Flags().DurationVar(&app.config.Daemon.ReadTimeout, "read-timeout", 5*time.Second, "read timeout for the HTTP server")
	cmd.Flags().DurationVar(&app.config.Daemon.WriteTimeout, "write-timeout", 60*time.Second, "write timeout for the HTTP server")
	cmd.Flags().DurationVar(&app.config.Daemon.RequestTimeout, "request-timeout", 45*time.Second, "timeout of a single dashboard request")
	cmd.Flags().IntVar(&app.config.Daemon.MaxHeaderBytes, "max-header-bytes", 1<<13, "maximum header bytes for HTTP server")
	cmd.Flags().DurationVar(&app.config.Daemon.RefreshInterval, "refresh-interval", handlers.DefaultRefreshInterval, "how often the dashboard page reloads itself, 0 to disable")
	cmd.Flags().StringVar(&app.config.Daemon.ListenHost, "listen-host", "", "host to listen on")
	cmd.Flags().IntVar(&app.config.Daemon.ListenPort, "listen-port", 8080, "port to listen on")

	// Cache flags
	cmd.Flags().DurationVar(&app.config.Cache.DateRangeTTL, "date-range-ttl", dashboard.DateRangeTTL, "time-to-live of the cached date range")
	cmd.Flags().DurationVar(&app.config.Cache.AirlinesTTL, "airlines-ttl", dashboard.AirlinesTTL, "time-to-live of the cached airline list")
	cmd.Flags().DurationVar(&app.config.Cache.GrievancesTTL, "grievances-ttl", dashboard.GrievancesTTL, "time-to-live of the cached grievance queries")

	destination.AddFlags(cmd.Flags(), &app.config.Warehouse)
}

// Run executes the command and associated process, returning an error if any.
func (a *App) Run() error {
	return a.cmd.Execute()
}

// UsageError returns if the error is a command parsing or runtime one.
func (a *App) UsageError() bool {
	return !a.cmd.SilenceUsage
}

// Hup drops the cached dashboard queries, so that the next requests read the warehouse again,
// prints all goroutine stack traces and return false to signal you shouldn't quit.
func (a *App) Hup() (shouldQuit bool) {
	if c := a.cache.Load(); c != nil {
		c.Purge()
		a.log.Info("Dashboard cache purged")
	}

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
	defer a.setReady()

	wh, err := destination.Open(context.Background(), a.config.Warehouse, destination.WithLogger(a.log))
	if err != nil {
		return err
	}
	defer func() {
		if cErr := wh.Close(); cErr != nil {
			a.log.Warn("Failed to close the warehouse", "err", cErr)
		}
	}()

	cached := dashboard.NewCached(wh,
		dashboard.WithTTLs(a.config.Cache.DateRangeTTL, a.config.Cache.AirlinesTTL, a.config.Cache.GrievancesTTL),
		dashboard.WithCacheLogger(a.log))
	a.cache.Store(cached)
	dash := dashboard.NewService(cached, dashboard.WithLogger(a.log))

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	a.daemon, err = webservice.New(context.Background(), dash, registry, a.config.Daemon, webservice.WithLogger(a.log))
	if err != nil {
		return fmt.Errorf("failed to create web service: %v", err)
	}
	a.setReady()

	return a.daemon.Run()
}
