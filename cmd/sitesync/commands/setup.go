package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/rs/zerolog"

	"github.com/sitesync/sitesync/pkg/guard"
	"github.com/sitesync/sitesync/pkg/model"
	"github.com/sitesync/sitesync/pkg/normalize"
	"github.com/sitesync/sitesync/pkg/provider"
	"github.com/sitesync/sitesync/pkg/store"
	"github.com/sitesync/sitesync/pkg/telemetry"
)

// app holds the wired collaborators shared by the subcommands.
type app struct {
	logger     zerolog.Logger
	provider   provider.Provider
	guard      *guard.Engine
	normalizer *normalize.Normalizer
	store      store.Store
	metrics    *telemetry.Metrics
	tracer     *telemetry.Tracer

	closers []func() error
}

// newApp wires logging, the provider, the protection engine and the
// snapshot store from the global flags.
func newApp(ctx context.Context) (*app, error) {
	cfg := telemetryConfig()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger, err := telemetry.NewLogger(cfg.Logging)
	if err != nil {
		return nil, err
	}

	a := &app{logger: logger}

	a.provider, err = provider.New(providerSpec)
	if err != nil {
		return nil, err
	}

	a.guard, err = guard.NewEngine(logger)
	if err != nil {
		return nil, err
	}
	if policyDir != "" {
		if err := a.guard.LoadPolicyDir(ctx, policyDir); err != nil {
			return nil, err
		}
	}
	a.normalizer = normalize.New(a.guard, logger)

	a.store, err = openStore(logger)
	if err != nil {
		return nil, err
	}
	if c, ok := a.store.(*store.SFTPStore); ok {
		a.closers = append(a.closers, c.Close)
	}

	if cfg.Metrics.Enabled {
		a.metrics, err = telemetry.NewMetrics(cfg.Metrics)
		if err != nil {
			return nil, err
		}
		if err := a.metrics.StartMetricsServer(); err != nil {
			return nil, err
		}
	}

	a.tracer, err = telemetry.NewTracer(cfg.Tracing, cfg.ServiceName, cfg.ServiceVersion, cfg.Environment)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func() error {
		return a.tracer.Shutdown(context.Background())
	})
	return a, nil
}

// telemetryConfig builds the telemetry configuration from the defaults
// and the global flags.
func telemetryConfig() *telemetry.Config {
	cfg := telemetry.DefaultConfig()
	cfg.Environment = "cli"
	cfg.Logging.Level = logLevel
	cfg.Logging.Format = logFormat
	cfg.Logging.Output = "stderr"
	if metricsListen != "" {
		cfg.Metrics.Enabled = true
		cfg.Metrics.ListenAddress = metricsListen
	}
	if traceExporter != "" {
		cfg.Tracing.Enabled = true
		cfg.Tracing.Exporter = traceExporter
		cfg.Tracing.Endpoint = traceEndpoint
	}
	return cfg
}

// Close releases held connections.
func (a *app) Close() {
	for _, c := range a.closers {
		if err := c(); err != nil {
			a.logger.Warn().Err(err).Msg("Close failed")
		}
	}
}

// openCatalog opens the capture catalog; callers must Close it.
func (a *app) openCatalog(ctx context.Context) (*store.Catalog, error) {
	return store.OpenCatalog(ctx, catalogPath, a.logger)
}

// openStore builds the snapshot store from the --store flag. A value
// of the form sftp://user@host[:port]/path selects the SFTP backend;
// anything else is a local directory.
func openStore(logger zerolog.Logger) (store.Store, error) {
	if !strings.HasPrefix(storeSpec, "sftp://") {
		return store.NewFileStore(storeSpec, logger)
	}

	u, err := url.Parse(storeSpec)
	if err != nil {
		return nil, fmt.Errorf("parse store url: %w", err)
	}
	cfg := store.SFTPConfig{
		Host:           u.Hostname(),
		User:           u.User.Username(),
		Root:           u.Path,
		PrivateKeyPath: sshKeyPath,
		KnownHostsPath: knownHosts,
	}
	if pw, ok := u.User.Password(); ok {
		cfg.Password = pw
	}
	if p := u.Port(); p != "" {
		if _, err := fmt.Sscanf(p, "%d", &cfg.Port); err != nil {
			return nil, fmt.Errorf("parse store url port %q: %w", p, err)
		}
	}
	return store.DialSFTP(cfg, logger)
}

// loadSnapshot reads a snapshot from a local file, falling back to a
// store reference when no such file exists.
func (a *app) loadSnapshot(ctx context.Context, arg string) (*model.Snapshot, error) {
	if data, err := os.ReadFile(arg); err == nil {
		return model.Decode(data)
	}
	snap, err := a.store.Read(ctx, arg)
	if err != nil {
		return nil, fmt.Errorf("snapshot %q: not a readable file or store reference: %w", arg, err)
	}
	return snap, nil
}

// printJSON writes v to stdout as indented JSON.
func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
