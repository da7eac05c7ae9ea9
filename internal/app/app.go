// Package app builds the runtime components from configuration.
package app

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"property_agent/internal/config"
	"property_agent/internal/document"
	"property_agent/internal/extract"
	"property_agent/internal/fetcher"
	"property_agent/internal/metrics"
	"property_agent/internal/scheduler"
	"property_agent/internal/storage"
)

// requestTimeout bounds a single HTTP request. The whole fetch phase is
// bounded separately by the configured fetch timeout.
const requestTimeout = 60 * time.Second

// NewLogger returns a text logger, or a JSON logger when format is "json".
func NewLogger(w io.Writer, level, format string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if strings.EqualFold(format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// NewFetcher returns the event source selected by cfg.Source.Kind.
func NewFetcher(cfg *config.Config, client fetcher.HTTPClient, log *slog.Logger) (fetcher.Fetcher, error) {
	docs := document.NewPDF(log)
	switch cfg.Source.Kind {
	case config.SourceCalendar:
		c, err := fetcher.NewCalendar(client, cfg.Source.CalendarAPIURL, cfg.Source.SiteURL, cfg.Location(), docs, log.With("source", "calendar"))
		if err != nil {
			return nil, fmt.Errorf("create calendar source: %w", err)
		}
		return c, nil
	case config.SourceFeed:
		return fetcher.NewFeed(client, cfg.Source.FeedURL, cfg.Location(), docs, log.With("source", "feed")), nil
	default:
		return nil, fmt.Errorf("unknown source kind %q", cfg.Source.Kind)
	}
}

// NewOrchestrator wires the ingestion pipeline: an SSRF-safe fetcher for the
// configured source, the extractor with the configured towns, and sender.
func NewOrchestrator(cfg *config.Config, store storage.Storage, sender scheduler.Sender, recorder metrics.Recorder, log *slog.Logger) (*scheduler.Orchestrator, error) {
	f, err := NewFetcher(cfg, fetcher.NewSafeClient(requestTimeout), log)
	if err != nil {
		return nil, err
	}
	return scheduler.NewOrchestrator(store, f, extract.New(cfg.KnownTowns), sender, recorder, log, scheduler.Options{
		FetchTimeout: cfg.FetchTimeout,
		SiteURL:      cfg.Source.SiteURL,
		Location:     cfg.Location(),
		SendRate:     cfg.SendRate,
	}), nil
}
