// Package config handles application configuration from environment variables
// and an optional YAML file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// Source kinds.
const (
	SourceCalendar = "calendar"
	SourceFeed     = "feed"
)

const (
	defaultDatabasePath = "./data/property_agent.db"
	defaultSiteURL      = "https://www.sheroot.co.za/fixed-property-sales.html"
	defaultCalendarAPI  = "https://inffuse.eventscalendar.co/js/v0.1/calendar/data"
	defaultSchedule     = "0 8 * * THU,FRI"
	defaultTimezone     = "Africa/Johannesburg"
	defaultFetchTimeout = 5 * time.Minute
	defaultSendRate     = 20
)

// Source describes where sale events are read from.
type Source struct {
	Kind           string `yaml:"kind"`
	SiteURL        string `yaml:"site_url"`
	CalendarAPIURL string `yaml:"calendar_api_url"`
	FeedURL        string `yaml:"feed_url"`
}

// Config holds the application configuration.
type Config struct {
	TelegramBotToken string
	DatabasePath     string
	LogLevel         string
	LogFormat        string
	AllowedUsers     []int64
	AdminUsers       []int64
	Source           Source
	Schedule         string
	Timezone         string
	RunOnStart       bool
	FetchTimeout     time.Duration
	SendRate         float64 // notifications per second
	MetricsAddr      string
	KnownTowns       []string
}

// fileConfig is the layout of the optional YAML file named by CONFIG_FILE.
type fileConfig struct {
	KnownTowns []string `yaml:"known_towns"`
	Source     Source   `yaml:"source"`
	Schedule   string   `yaml:"schedule"`
	Timezone   string   `yaml:"timezone"`
}

// Load reads configuration from environment variables. Values from the file
// named by CONFIG_FILE are applied first; environment variables win.
func Load() (*Config, error) {
	return load(true)
}

// LoadLocal is Load for offline tooling: the Telegram token is optional.
func LoadLocal() (*Config, error) {
	return load(false)
}

func load(requireToken bool) (*Config, error) {
	token := os.Getenv("TELEGRAM_BOT_TOKEN")
	if token == "" && requireToken {
		return nil, fmt.Errorf("TELEGRAM_BOT_TOKEN is required")
	}

	cfg := &Config{
		TelegramBotToken: token,
		DatabasePath:     defaultDatabasePath,
		LogLevel:         "info",
		LogFormat:        "text",
		Source: Source{
			Kind:           SourceCalendar,
			SiteURL:        defaultSiteURL,
			CalendarAPIURL: defaultCalendarAPI,
		},
		Schedule:     defaultSchedule,
		Timezone:     defaultTimezone,
		RunOnStart:   true,
		FetchTimeout: defaultFetchTimeout,
		SendRate:     defaultSendRate,
	}

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.applyFile(path); err != nil {
			return nil, err
		}
	}

	setString(&cfg.DatabasePath, "DATABASE_PATH")
	setString(&cfg.LogLevel, "LOG_LEVEL")
	setString(&cfg.LogFormat, "LOG_FORMAT")
	setString(&cfg.Source.Kind, "SOURCE_KIND")
	setString(&cfg.Source.SiteURL, "SOURCE_URL")
	setString(&cfg.Source.CalendarAPIURL, "CALENDAR_API_URL")
	setString(&cfg.Source.FeedURL, "FEED_URL")
	setString(&cfg.Schedule, "SCHEDULE")
	setString(&cfg.Timezone, "TIMEZONE")
	setString(&cfg.MetricsAddr, "METRICS_ADDR")

	var err error
	if cfg.AllowedUsers, err = parseUserIDs("ALLOWED_USERS"); err != nil {
		return nil, err
	}
	if cfg.AdminUsers, err = parseUserIDs("ADMIN_USERS"); err != nil {
		return nil, err
	}

	if raw := os.Getenv("RUN_ON_START"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid RUN_ON_START %q", raw)
		}
		cfg.RunOnStart = v
	}
	if raw := os.Getenv("FETCH_TIMEOUT"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			return nil, fmt.Errorf("invalid FETCH_TIMEOUT %q", raw)
		}
		cfg.FetchTimeout = d
	}
	if raw := os.Getenv("SEND_RATE"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || v < 0 {
			return nil, fmt.Errorf("invalid SEND_RATE %q", raw)
		}
		cfg.SendRate = v
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	c.KnownTowns = fc.KnownTowns
	if fc.Source.Kind != "" {
		c.Source.Kind = fc.Source.Kind
	}
	if fc.Source.SiteURL != "" {
		c.Source.SiteURL = fc.Source.SiteURL
	}
	if fc.Source.CalendarAPIURL != "" {
		c.Source.CalendarAPIURL = fc.Source.CalendarAPIURL
	}
	if fc.Source.FeedURL != "" {
		c.Source.FeedURL = fc.Source.FeedURL
	}
	if fc.Schedule != "" {
		c.Schedule = fc.Schedule
	}
	if fc.Timezone != "" {
		c.Timezone = fc.Timezone
	}
	return nil
}

func (c *Config) validate() error {
	switch c.Source.Kind {
	case SourceCalendar:
		if c.Source.CalendarAPIURL == "" {
			return fmt.Errorf("CALENDAR_API_URL is required for the calendar source")
		}
	case SourceFeed:
		if c.Source.FeedURL == "" {
			return fmt.Errorf("FEED_URL is required for the feed source")
		}
	default:
		return fmt.Errorf("invalid SOURCE_KIND %q, use: %s, %s", c.Source.Kind, SourceCalendar, SourceFeed)
	}

	if _, err := cron.ParseStandard(c.Schedule); err != nil {
		return fmt.Errorf("invalid SCHEDULE %q: %w", c.Schedule, err)
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("invalid TIMEZONE %q: %w", c.Timezone, err)
	}
	return nil
}

// Location returns the configured time zone, falling back to UTC.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// IsUserAllowed checks whether a user ID is in the allow list.
// Returns true if the allow list is empty (all users permitted).
func (c *Config) IsUserAllowed(userID int64) bool {
	if len(c.AllowedUsers) == 0 {
		return true
	}
	return containsID(c.AllowedUsers, userID)
}

// IsAdmin reports whether a user may trigger operator commands.
// An empty admin list grants nobody access.
func (c *Config) IsAdmin(userID int64) bool {
	return containsID(c.AdminUsers, userID)
}

func containsID(ids []int64, id int64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func parseUserIDs(key string) ([]int64, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return nil, nil
	}
	var ids []int64
	for _, s := range strings.Split(raw, ",") {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		uid, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid user ID %q in %s: %w", s, key, err)
		}
		ids = append(ids, uid)
	}
	return ids, nil
}
