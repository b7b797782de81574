// Package config loads eventsync settings from an optional YAML file with
// EVENTSYNC_* environment overrides.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"
	_ "time/tzdata"

	"gopkg.in/yaml.v3"
)

type HTTPConfig struct {
	Timeout       time.Duration `yaml:"timeout"`
	UserAgent     string        `yaml:"user_agent"`
	CourtesyDelay time.Duration `yaml:"courtesy_delay"` // minimum spacing between requests to one host
	Retries       int           `yaml:"retries"`
	RetryBackoff  time.Duration `yaml:"retry_backoff"`
}

// FeedSource is the common shape for single-URL adapters.
type FeedSource struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
}

type TicketingSource struct {
	Enabled      bool   `yaml:"enabled"`
	BaseURL      string `yaml:"base_url"`
	PublicURL    string `yaml:"public_url"` // event page prefix, id appended
	DefaultVenue string `yaml:"default_venue"`
	DefaultCity  string `yaml:"default_city"`
	DefaultState string `yaml:"default_state"`
}

type BaseSource struct {
	Enabled     bool   `yaml:"enabled"`
	URL         string `yaml:"url"`
	FetchDetail bool   `yaml:"fetch_detail"`
	DetailBatch int    `yaml:"detail_batch"`
}

type CalendarSource struct {
	Enabled    bool   `yaml:"enabled"`
	URL        string `yaml:"url"` // week start date appended as ?week=YYYY-MM-DD
	WeeksAhead int    `yaml:"weeks_ahead"`
}

type SportsSource struct {
	Enabled   bool   `yaml:"enabled"`
	URL       string `yaml:"url"`
	HomeMatch string `yaml:"home_match"` // substring of the home venue's location
	TeamName  string `yaml:"team_name"`
}

type ICSSource struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
	Section string `yaml:"section"`
}

type StaticSource struct {
	Enabled bool `yaml:"enabled"`
}

// Sources lists every adapter in merge order.
type Sources struct {
	Ticketing TicketingSource `yaml:"ticketing"`
	Downtown  FeedSource      `yaml:"downtown"`
	Base      BaseSource      `yaml:"base"`
	Theater   FeedSource      `yaml:"theater"`
	Calendar  CalendarSource  `yaml:"calendar"`
	Sports    SportsSource    `yaml:"sports"`
	ICS       ICSSource       `yaml:"ics"`
	Holidays  StaticSource    `yaml:"holidays"`
	Concerts  StaticSource    `yaml:"concerts"`
}

type SyncConfig struct {
	ArchiveGrace     time.Duration `yaml:"archive_grace"`
	StaleWindow      time.Duration `yaml:"stale_window"`
	HashDescPrefix   int           `yaml:"hash_description_prefix"`
	DescriptionLimit int           `yaml:"description_limit"`
	EnrichWorkers    int           `yaml:"enrich_workers"`
}

type NotifyConfig struct {
	WebhookURL string      `yaml:"webhook_url"`
	BatchSize  int         `yaml:"batch_size"`
	Email      EmailConfig `yaml:"email"`
}

// EmailConfig is the Postmark channel, used when no webhook URL is set.
type EmailConfig struct {
	ServerToken string   `yaml:"server_token"`
	From        string   `yaml:"from"`
	To          []string `yaml:"to"`
}

// Enabled reports whether a reminder channel is configured.
func (n NotifyConfig) Enabled() bool {
	return n.WebhookURL != "" || n.Email.ServerToken != ""
}

type PublishConfig struct {
	Bucket    string `yaml:"bucket"`
	Key       string `yaml:"key"`
	Region    string `yaml:"region"`
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
}

// Enabled reports whether feed publishing is configured.
func (p PublishConfig) Enabled() bool {
	return p.Bucket != ""
}

type ServeConfig struct {
	Port           string `yaml:"port"`
	SyncSchedule   string `yaml:"sync_schedule"`
	NotifySchedule string `yaml:"notify_schedule"`
	Cleanup        bool   `yaml:"cleanup"`
	// Origins are websocket origin patterns. Empty accepts any origin.
	Origins []string `yaml:"origins"`
}

type Config struct {
	LogLevel  string        `yaml:"log_level"`
	LogFormat string        `yaml:"log_format"`
	Database  string        `yaml:"database"`
	Timezone  string        `yaml:"timezone"`
	VenueFile string        `yaml:"venue_file"`
	HTTP      HTTPConfig    `yaml:"http"`
	Sources   Sources       `yaml:"sources"`
	Sync      SyncConfig    `yaml:"sync"`
	Notify    NotifyConfig  `yaml:"notify"`
	Publish   PublishConfig `yaml:"publish"`
	Serve     ServeConfig   `yaml:"serve"`
}

// Default returns the built-in settings. Network sources are enabled but
// have no URL, so they stay inactive until one is configured.
func Default() Config {
	return Config{
		LogLevel:  "info",
		LogFormat: "text",
		Database:  "eventsync.db",
		Timezone:  "America/Chicago",
		HTTP: HTTPConfig{
			Timeout:       20 * time.Second,
			UserAgent:     "eventsync/1.0",
			CourtesyDelay: 500 * time.Millisecond,
			Retries:       2,
			RetryBackoff:  time.Second,
		},
		Sources: Sources{
			Ticketing: TicketingSource{Enabled: true, DefaultVenue: "Downtown", DefaultState: "OK"},
			Downtown:  FeedSource{Enabled: true},
			Base:      BaseSource{Enabled: true, FetchDetail: true, DetailBatch: 5},
			Theater:   FeedSource{Enabled: true},
			Calendar:  CalendarSource{Enabled: true, WeeksAhead: 8},
			Sports:    SportsSource{Enabled: true},
			ICS:       ICSSource{Enabled: true, Section: "downtown"},
			Holidays:  StaticSource{Enabled: true},
			Concerts:  StaticSource{Enabled: true},
		},
		Sync: SyncConfig{
			ArchiveGrace:     24 * time.Hour,
			StaleWindow:      48 * time.Hour,
			HashDescPrefix:   500,
			DescriptionLimit: 2000,
			EnrichWorkers:    4,
		},
		Notify: NotifyConfig{BatchSize: 10},
		Publish: PublishConfig{
			Key:    "events.json",
			Region: "us-east-1",
		},
		Serve: ServeConfig{
			Port:           "8080",
			SyncSchedule:   "0 */4 * * *",
			NotifySchedule: "0 9 * * *",
			Cleanup:        true,
		},
	}
}

// Load reads path on top of Default, then applies environment overrides.
// A missing file is not an error.
func Load(path string) (Config, error) {
	c := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return c, fmt.Errorf("read config: %w", err)
		default:
			if err := yaml.Unmarshal(b, &c); err != nil {
				return c, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}
	applyEnv(&c, os.Getenv)
	if err := c.Validate(); err != nil {
		return c, err
	}
	return c, nil
}

func applyEnv(c *Config, getenv func(string) string) {
	str := func(key string, dst *string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	str("EVENTSYNC_LOG_LEVEL", &c.LogLevel)
	str("EVENTSYNC_LOG_FORMAT", &c.LogFormat)
	str("EVENTSYNC_DB", &c.Database)
	str("EVENTSYNC_TIMEZONE", &c.Timezone)
	str("EVENTSYNC_VENUE_FILE", &c.VenueFile)
	str("EVENTSYNC_WEBHOOK_URL", &c.Notify.WebhookURL)
	str("EVENTSYNC_POSTMARK_TOKEN", &c.Notify.Email.ServerToken)
	str("EVENTSYNC_PORT", &c.Serve.Port)
	str("EVENTSYNC_S3_BUCKET", &c.Publish.Bucket)
	str("EVENTSYNC_S3_KEY", &c.Publish.Key)
	str("EVENTSYNC_S3_REGION", &c.Publish.Region)
	str("EVENTSYNC_S3_ENDPOINT", &c.Publish.Endpoint)
	str("EVENTSYNC_S3_ACCESS_KEY", &c.Publish.AccessKey)
	str("EVENTSYNC_S3_SECRET_KEY", &c.Publish.SecretKey)
	if v := getenv("EVENTSYNC_COURTESY_DELAY"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.HTTP.CourtesyDelay = d
		}
	}
	if v := getenv("EVENTSYNC_NOTIFY_BATCH"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Notify.BatchSize = n
		}
	}
}

// Validate rejects settings the pipeline cannot run with.
func (c Config) Validate() error {
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}
	if c.Sync.StaleWindow <= 0 || c.Sync.ArchiveGrace < 0 {
		return errors.New("sync windows must be positive")
	}
	if c.Notify.BatchSize <= 0 {
		return errors.New("notify batch size must be positive")
	}
	return nil
}

// Location returns the configured timezone. Call after Validate.
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}
