// Package config loads and watches the file listing the datasets to ingest.
//
// The file is JSON, or TOML when its name ends with ".toml".
package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"
	"github.com/fsnotify/fsnotify"
	"github.com/openaviation/grievance-insights/internal/warehouse"
	"github.com/ubuntu/decorate"
)

// Dataset is one API resource and the warehouse table it is loaded into.
type Dataset struct {
	// Name is the destination table name.
	Name string `json:"name" toml:"name"`
	// ResourceID is the data.gov.in resource identifier.
	ResourceID string `json:"resourceId" toml:"resourceId"`
}

// Conf represents the datasets file.
type Conf struct {
	Datasets []Dataset `json:"datasets" toml:"datasets"`
}

// Validate checks that every dataset has a usable table name, a resource and a unique name.
func (c Conf) Validate() error {
	seen := make(map[string]struct{}, len(c.Datasets))
	var errs []error
	for i, d := range c.Datasets {
		if err := warehouse.ValidateTable(d.Name); err != nil {
			errs = append(errs, fmt.Errorf("dataset %d: %w", i, err))
		}
		if d.ResourceID == "" {
			errs = append(errs, fmt.Errorf("dataset %d (%s): missing resourceId", i, d.Name))
		}
		if _, ok := seen[d.Name]; ok {
			errs = append(errs, fmt.Errorf("dataset %d: duplicate name %q", i, d.Name))
		}
		seen[d.Name] = struct{}{}
	}
	return errors.Join(errs...)
}

// Manager loads the datasets file and reloads it when it changes.
type Manager struct {
	config     Conf
	lock       sync.RWMutex
	configPath string

	log *slog.Logger
}

type options struct {
	logger *slog.Logger
}

// Options represents an optional function to override Manager default values.
type Options func(*options)

// WithLogger sets the logger used by the manager.
func WithLogger(l *slog.Logger) Options {
	return func(o *options) {
		o.logger = l
	}
}

// New creates a new datasets manager reading path.
func New(path string, args ...Options) *Manager {
	opts := options{logger: slog.Default()}
	for _, opt := range args {
		opt(&opts)
	}

	return &Manager{
		configPath: filepath.Clean(path),
		log:        opts.logger,
	}
}

// Load reads and validates the datasets file. The previous datasets are kept on failure.
func (cm *Manager) Load() (err error) {
	defer decorate.OnError(&err, "could not load datasets file %s", cm.configPath)

	file, err := os.Open(cm.configPath)
	if err != nil {
		return err
	}
	defer file.Close()

	var newConfig Conf
	if strings.EqualFold(filepath.Ext(cm.configPath), ".toml") {
		md, err := toml.NewDecoder(file).Decode(&newConfig)
		if err != nil {
			return fmt.Errorf("decoding datasets TOML: %w", err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return fmt.Errorf("unknown keys in datasets TOML: %v", undecoded)
		}
	} else {
		decoder := json.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&newConfig); err != nil {
			return fmt.Errorf("decoding datasets JSON: %w", err)
		}
	}
	if err := newConfig.Validate(); err != nil {
		return fmt.Errorf("invalid datasets file: %w", err)
	}

	cm.lock.Lock()
	cm.config = newConfig
	cm.lock.Unlock()

	cm.log.Info("Datasets loaded", "count", len(newConfig.Datasets))
	return nil
}

// Watch starts watching the datasets file for changes.
//
// It returns two channels: one for changes which result in a successful load and another for unrecoverable watcher errors.
func (cm *Manager) Watch(ctx context.Context) (<-chan struct{}, <-chan error, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create watcher: %v", err)
	}

	configDir := filepath.Dir(cm.configPath)
	if err := watcher.Add(configDir); err != nil {
		watcher.Close()
		return nil, nil, fmt.Errorf("failed to add directory %s to watcher: %v", configDir, err)
	}

	cm.log.Info("Watching datasets directory", "dir", configDir)
	changesCh := make(chan struct{}, 1)
	errorsCh := make(chan error, 1)

	if err := cm.Load(); err != nil {
		cm.log.Warn("Error loading initial datasets", "err", err)
	}

	go func() {
		defer close(changesCh)
		defer close(errorsCh)
		defer watcher.Close()

		for {
			select {
			case <-ctx.Done():
				cm.log.Info("Datasets watcher stopped")
				return
			case event, ok := <-watcher.Events:
				if !ok {
					errorsCh <- fmt.Errorf("watcher events channel closed unexpectedly")
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				if filepath.Clean(event.Name) != cm.configPath {
					continue
				}

				cm.log.Debug("Datasets file changed, reloading")
				if err := cm.Load(); err != nil {
					cm.log.Warn("Error reloading datasets", "err", err)
					continue
				}

				select {
				case changesCh <- struct{}{}:
				default:
				}

			case err, ok := <-watcher.Errors:
				if !ok {
					errorsCh <- fmt.Errorf("watcher errors channel closed unexpectedly")
					return
				}
				cm.log.Warn("Watcher error", "err", err)
			}
		}
	}()

	return changesCh, errorsCh, nil
}

// Datasets returns a copy of the configured datasets.
func (cm *Manager) Datasets() []Dataset {
	cm.lock.RLock()
	defer cm.lock.RUnlock()
	return slices.Clone(cm.config.Datasets)
}

// Static is a fixed list of datasets, for daemons started without a datasets file.
type Static struct {
	datasets []Dataset
}

// NewStatic returns a provider always serving datasets.
func NewStatic(datasets ...Dataset) (*Static, error) {
	if err := (Conf{Datasets: datasets}).Validate(); err != nil {
		return nil, err
	}
	return &Static{datasets: slices.Clone(datasets)}, nil
}

// Watch returns channels that never fire: the datasets never change.
func (s *Static) Watch(context.Context) (<-chan struct{}, <-chan error, error) {
	return make(chan struct{}), make(chan error), nil
}

// Datasets returns a copy of the datasets.
func (s *Static) Datasets() []Dataset {
	return slices.Clone(s.datasets)
}
