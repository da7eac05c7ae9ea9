// Package scheduler runs ingestion cycles: fetch, extract, deduplicate,
// match and notify.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"property_agent/internal/bot"
	"property_agent/internal/extract"
	"property_agent/internal/fetcher"
	"property_agent/internal/filter"
	"property_agent/internal/identity"
	"property_agent/internal/metrics"
	"property_agent/internal/model"
	"property_agent/internal/storage"
)

// ErrRunInProgress is returned by RunOnce while another cycle is running.
var ErrRunInProgress = errors.New("run already in progress")

// Sender is the interface for sending Telegram messages.
type Sender interface {
	SendMessage(chatID int64, text string) error
}

// Options configures an Orchestrator.
type Options struct {
	FetchTimeout time.Duration
	SiteURL      string
	Location     *time.Location
	// SendRate is the maximum number of notifications per second.
	SendRate float64
}

// Orchestrator executes ingestion cycles. At most one cycle runs at a time.
type Orchestrator struct {
	store     storage.Storage
	fetcher   fetcher.Fetcher
	extractor *extract.Extractor
	sender    Sender
	recorder  metrics.Recorder
	limiter   *rate.Limiter
	log       *slog.Logger
	opts      Options
	now       func() time.Time

	running sync.Mutex

	stateMu sync.RWMutex
	state   model.RunState
}

// NewOrchestrator creates an Orchestrator. A nil recorder disables metrics.
func NewOrchestrator(store storage.Storage, f fetcher.Fetcher, ex *extract.Extractor, sender Sender, recorder metrics.Recorder, log *slog.Logger, opts Options) *Orchestrator {
	if recorder == nil {
		recorder = metrics.Nop{}
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = 5 * time.Minute
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	limit := rate.Inf
	if opts.SendRate > 0 {
		limit = rate.Limit(opts.SendRate)
	}
	return &Orchestrator{
		store:     store,
		fetcher:   f,
		extractor: ex,
		sender:    sender,
		recorder:  recorder,
		limiter:   rate.NewLimiter(limit, 1),
		log:       log,
		opts:      opts,
		now:       time.Now,
		state:     model.StateIdle,
	}
}

// State returns the phase of the cycle currently running.
func (o *Orchestrator) State() model.RunState {
	o.stateMu.RLock()
	defer o.stateMu.RUnlock()
	return o.state
}

func (o *Orchestrator) setState(s model.RunState) {
	o.stateMu.Lock()
	o.state = s
	o.stateMu.Unlock()
}

// Today returns the current date in the configured time zone.
func (o *Orchestrator) Today() string {
	return model.DateIn(o.now(), o.opts.Location)
}

// RunOnce executes one ingestion cycle. A fetch failure aborts the cycle
// before any state is written. Cancelling ctx stops the cycle after the
// event being processed and returns the cancellation.
func (o *Orchestrator) RunOnce(ctx context.Context) (model.RunReport, error) {
	if !o.running.TryLock() {
		o.recorder.ObserveRun(metrics.OutcomeSkipped, model.RunReport{})
		return model.RunReport{}, ErrRunInProgress
	}
	defer o.running.Unlock()
	defer o.setState(model.StateIdle)

	start := time.Now()
	report := model.RunReport{RunID: uuid.NewString()}
	log := o.log.With("run_id", report.RunID)
	log.Info("run started")

	err := o.run(ctx, log, &report)
	report.Duration = time.Since(start)

	if err != nil {
		log.Error("run failed", "error", err, "events", report.Events, "notified", report.Notified)
		o.recorder.ObserveRun(metrics.OutcomeFailed, report)
		return report, err
	}

	log.Info("run finished",
		"events", report.Events,
		"cached_events", report.CachedEvents,
		"parsed", report.Parsed,
		"stored", report.Stored,
		"listings", report.Listings,
		"skipped_seen", report.SkippedSeen,
		"unmatched", report.Unmatched,
		"notified", report.Notified,
		"sent", report.Sent,
		"send_failures", report.SendFailures,
		"duration", report.Duration,
	)
	o.recorder.ObserveRun(metrics.OutcomeSuccess, report)
	return report, nil
}

func (o *Orchestrator) run(ctx context.Context, log *slog.Logger, report *model.RunReport) error {
	today := o.Today()

	o.setState(model.StateFetching)
	dates, err := o.store.SaleDatesSince(ctx, today)
	if err != nil {
		return fmt.Errorf("load cached dates: %w", err)
	}
	cached := make(map[string]bool, len(dates))
	for _, d := range dates {
		cached[d] = true
	}
	if len(dates) > 0 {
		log.Info("catalogue covers sale dates", "dates", dates)
	}

	fetchCtx, cancel := context.WithTimeout(ctx, o.opts.FetchTimeout)
	events, err := o.fetcher.Fetch(fetchCtx, cached)
	cancel()
	if err != nil {
		return fmt.Errorf("fetch events: %w", err)
	}
	report.Events = len(events)

	rc, err := o.recipients(ctx)
	if err != nil {
		return err
	}

	for _, ev := range events {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("run cancelled: %w", err)
		}
		if model.IsPast(ev.Date, today) {
			log.Debug("skipping past event", "sale_date", ev.Date, "title", ev.Title)
			continue
		}
		o.processEvent(ctx, log, ev, cached[ev.Date], rc, report)
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("run cancelled: %w", err)
	}
	return nil
}

func (o *Orchestrator) processEvent(ctx context.Context, log *slog.Logger, ev model.Event, cached bool, rc recipients, report *model.RunReport) {
	log = log.With("sale_date", ev.Date, "title", ev.Title)

	var props []model.Property
	if cached {
		var err error
		props, err = o.store.ListPropertiesByDate(ctx, ev.Date)
		if err != nil {
			log.Error("load cached properties", "error", err)
			return
		}
		report.CachedEvents++
		log.Info("using cached properties", "count", len(props))
	} else {
		o.setState(model.StateExtracting)
		props = o.extractor.Properties(ev.DocumentText, ev.Date, ev.DocumentRef)
		report.Parsed += len(props)
		log.Info("parsed properties", "count", len(props))
		if len(props) > 0 {
			if ctx.Err() != nil {
				return
			}
			// The date counts as cached once stored, so an event is committed
			// whole or left for the next run.
			stored, err := o.store.InsertProperties(ctx, props)
			if err != nil {
				log.Error("store properties, event left for next run", "count", len(props), "error", err)
				return
			}
			report.Stored += stored
		}
	}

	if len(props) == 0 {
		if cached || strings.TrimSpace(ev.RawText) == "" {
			return
		}
		listing := o.extractor.Listing(ev)
		report.Listings++
		o.dispatch(ctx, log, identity.Listing(listing), bot.FormatListing(listing, o.opts.SiteURL),
			func(pref model.Preference) bool { return filter.MatchListing(listing, pref) }, rc, report)
		return
	}

	for _, p := range props {
		o.dispatch(ctx, log.With("number", p.Number), identity.Property(p), bot.FormatProperty(p, o.opts.SiteURL),
			func(pref model.Preference) bool { return filter.Match(p, pref) }, rc, report)
	}
}

// dispatch notifies every matching subscriber of an unseen record. The
// record is marked seen once at least one send was attempted.
func (o *Orchestrator) dispatch(ctx context.Context, log *slog.Logger, hash, text string, match func(model.Preference) bool, rc recipients, report *model.RunReport) {
	seen, err := o.store.IsSeen(ctx, hash)
	if err != nil {
		log.Error("check seen", "error", err)
		return
	}
	if seen {
		report.SkippedSeen++
		return
	}

	o.setState(model.StateMatching)
	targets := rc.targets(match)
	if len(targets) == 0 {
		report.Unmatched++
		return
	}

	o.setState(model.StateNotifying)
	dispatched := 0
	for _, chatID := range targets {
		if err := o.limiter.Wait(ctx); err != nil {
			log.Warn("notification aborted", "chat_id", chatID, "error", err)
			break
		}
		dispatched++
		if err := o.sender.SendMessage(chatID, text); err != nil {
			report.SendFailures++
			log.Error("send notification", "chat_id", chatID, "error", err)
			continue
		}
		report.Sent++
	}
	if dispatched == 0 {
		return
	}

	report.Notified++
	// Messages already went out, so the commit must survive cancellation.
	if err := o.store.MarkSeen(context.WithoutCancel(ctx), hash); err != nil {
		log.Error("mark seen", "error", err)
	}
}

type recipients struct {
	chats map[int64]int64
	prefs []model.Preference
	all   []int64
}

func (o *Orchestrator) recipients(ctx context.Context) (recipients, error) {
	users, err := o.store.ListUsers(ctx)
	if err != nil {
		return recipients{}, fmt.Errorf("list users: %w", err)
	}
	prefs, err := o.store.ListActivePreferences(ctx)
	if err != nil {
		return recipients{}, fmt.Errorf("list preferences: %w", err)
	}

	rc := recipients{chats: make(map[int64]int64, len(users)), prefs: prefs}
	for _, u := range users {
		chatID := u.ChatID
		if chatID == 0 {
			chatID = u.ID
		}
		rc.chats[u.ID] = chatID
		rc.all = append(rc.all, chatID)
	}
	return rc, nil
}

// targets returns the chats to notify. Without any active preference every
// registered user is a target.
func (rc recipients) targets(match func(model.Preference) bool) []int64 {
	if len(rc.prefs) == 0 {
		return rc.all
	}
	var out []int64
	notified := make(map[int64]bool)
	for _, pref := range rc.prefs {
		if notified[pref.SubscriberID] || !match(pref) {
			continue
		}
		chatID, ok := rc.chats[pref.SubscriberID]
		if !ok {
			continue
		}
		notified[pref.SubscriberID] = true
		out = append(out, chatID)
	}
	return out
}
