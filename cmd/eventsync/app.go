package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/dukerupert/eventsync/internal/config"
	"github.com/dukerupert/eventsync/internal/database"
	"github.com/dukerupert/eventsync/internal/enrich"
	"github.com/dukerupert/eventsync/internal/fetch"
	"github.com/dukerupert/eventsync/internal/logging"
	"github.com/dukerupert/eventsync/internal/metrics"
	"github.com/dukerupert/eventsync/internal/model"
	"github.com/dukerupert/eventsync/internal/pipeline"
	"github.com/dukerupert/eventsync/internal/publish"
	"github.com/dukerupert/eventsync/internal/reconcile"
	"github.com/dukerupert/eventsync/internal/source"
	"github.com/dukerupert/eventsync/internal/store"
	ws "github.com/dukerupert/eventsync/internal/websocket"
)

// globalFlags are the persistent flags shared by every command.
type globalFlags struct {
	configPath string
	database   string
	logLevel   string
	logFormat  string
}

func (g *globalFlags) register(f *pflag.FlagSet) {
	f.StringVarP(&g.configPath, "config", "c", "eventsync.yaml", "config file (optional)")
	f.StringVar(&g.database, "database", "", "database path or postgres:// DSN (overrides config)")
	f.StringVar(&g.logLevel, "log-level", "", "log level: debug, info, warn, error")
	f.StringVar(&g.logFormat, "log-format", "", "log format: text or json")
}

// app holds what a command needs once config is loaded.
type app struct {
	cfg    config.Config
	logger *slog.Logger
	db     *database.DB
}

// load reads config, applies flag overrides, and sets up logging. Logs go
// to the command's stderr so --json output stays clean.
func (g *globalFlags) load(cmd *cobra.Command) (*app, error) {
	cfg, err := config.Load(g.configPath)
	if err != nil {
		return nil, err
	}
	if g.database != "" {
		cfg.Database = g.database
	}
	if g.logLevel != "" {
		cfg.LogLevel = g.logLevel
	}
	if g.logFormat != "" {
		cfg.LogFormat = g.logFormat
	}
	logger := logging.New(cmd.ErrOrStderr(), cfg.LogLevel, cfg.LogFormat)
	return &app{cfg: cfg, logger: logger}, nil
}

// openDB opens the configured database and imports the venue file, if one
// is set.
func (a *app) openDB() error {
	db, err := database.Open(a.cfg.Database)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	a.db = db
	if a.cfg.VenueFile != "" {
		n, err := importVenues(store.NewVenueStore(db), a.cfg.VenueFile)
		if err != nil {
			return err
		}
		a.logger.Debug("venue file loaded", "path", a.cfg.VenueFile, "count", n)
	}
	return nil
}

func (a *app) close() {
	if a.db != nil {
		a.db.Close()
	}
}

func (a *app) fetchClient() *fetch.Client {
	h := a.cfg.HTTP
	retries := h.Retries
	if retries < 0 {
		retries = 0
	}
	return fetch.New(
		fetch.WithHTTPClient(&http.Client{Timeout: h.Timeout}),
		fetch.WithUserAgent(h.UserAgent),
		fetch.WithCourtesyDelay(h.CourtesyDelay),
		fetch.WithRetries(uint64(retries), h.RetryBackoff),
		fetch.WithLogger(a.logger.With("component", "fetch")),
	)
}

// adapters builds the enabled adapters, narrowed to name when it is set.
func (a *app) adapters(client *fetch.Client, name string) ([]source.Adapter, error) {
	env := source.Env{
		Client:   client,
		Location: a.cfg.Location(),
		Logger:   a.logger.With("component", "source"),
	}
	return source.Select(source.Build(a.cfg.Sources, env), name)
}

// publisher returns nil when publishing is not configured.
func (a *app) publisher() (pipeline.Publisher, error) {
	p := a.cfg.Publish
	if !p.Enabled() {
		return nil, nil
	}
	pub, err := publish.New(publish.Config{
		Bucket:    p.Bucket,
		Key:       p.Key,
		Region:    p.Region,
		Endpoint:  p.Endpoint,
		AccessKey: p.AccessKey,
		SecretKey: p.SecretKey,
	}, a.logger.With("component", "publish"))
	if err != nil {
		return nil, err
	}
	return pub, nil
}

// newPipeline wires a Pipeline. A nil db gives a preview-only pipeline.
func (a *app) newPipeline(client *fetch.Client, m *metrics.Metrics, hub *ws.Hub) (*pipeline.Pipeline, error) {
	deps := pipeline.Deps{
		Enricher: enrich.New(client,
			enrich.WithWorkers(a.cfg.Sync.EnrichWorkers),
			enrich.WithLogger(a.logger.With("component", "enrich"))),
		Metrics: m,
		Hub:     hub,
		Logger:  a.logger,
	}
	if a.db != nil {
		deps.Events = store.NewEventStore(a.db)
		deps.Runs = store.NewRunStore(a.db)
		deps.Venues = store.NewVenueStore(a.db)
		pub, err := a.publisher()
		if err != nil {
			return nil, err
		}
		deps.Publisher = pub
	}
	return pipeline.New(deps), nil
}

func (a *app) reconcileOptions() reconcile.Options {
	s := a.cfg.Sync
	return reconcile.Options{
		ArchiveGrace:     s.ArchiveGrace,
		StaleWindow:      s.StaleWindow,
		HashPrefix:       s.HashDescPrefix,
		DescriptionLimit: s.DescriptionLimit,
	}
}

// venueFile is the layout of a venue import file.
type venueFile struct {
	Venues []model.VenueRecord `yaml:"venues"`
}

func readVenueFile(path string) ([]model.VenueRecord, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read venue file: %w", err)
	}
	var vf venueFile
	if err := yaml.Unmarshal(b, &vf); err != nil {
		return nil, fmt.Errorf("parse venue file %s: %w", path, err)
	}
	for i, v := range vf.Venues {
		if v.ID == "" || v.Name == "" {
			return nil, fmt.Errorf("venue %d in %s: id and name are required", i+1, path)
		}
	}
	return vf.Venues, nil
}

func importVenues(vs *store.VenueStore, path string) (int, error) {
	records, err := readVenueFile(path)
	if err != nil {
		return 0, err
	}
	for _, v := range records {
		if err := vs.Upsert(v); err != nil {
			return 0, err
		}
	}
	return len(records), nil
}
