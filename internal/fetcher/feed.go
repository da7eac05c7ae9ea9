package fetcher

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"property_agent/internal/document"
	"property_agent/internal/model"
)

// Feed reads sale events from an RSS or Atom feed. Each item is one sale;
// a PDF enclosure or link is treated as the sale document.
type Feed struct {
	client HTTPClient
	url    string
	loc    *time.Location
	docs   document.Extractor
	log    *slog.Logger
	now    func() time.Time
}

// NewFeed creates a feed source; loc decides which day is today.
func NewFeed(client HTTPClient, feedURL string, loc *time.Location, docs document.Extractor, log *slog.Logger) *Feed {
	return &Feed{
		client: client,
		url:    feedURL,
		loc:    loc,
		docs:   docs,
		log:    log,
		now:    time.Now,
	}
}

// Fetch downloads and parses the feed and converts its items to events.
func (f *Feed) Fetch(ctx context.Context, skip map[string]bool) ([]model.Event, error) {
	body, err := get(ctx, f.client, f.url, maxIndexSize)
	if err != nil {
		return nil, fmt.Errorf("fetch feed: %w", err)
	}

	parser := gofeed.NewParser()
	feed, err := parser.ParseString(string(body))
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}
	f.log.Info("feed loaded", "title", feed.Title, "items", len(feed.Items))

	today := model.DateIn(f.now(), f.loc)
	var events []model.Event
	for _, item := range feed.Items {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		date := itemDate(item)
		if model.IsPast(date, today) {
			continue
		}

		desc := item.Content
		if desc == "" {
			desc = item.Description
		}
		parts := []string{"Title: " + item.Title, "Date: " + date}
		if text := plainText(desc); text != "" {
			parts = append(parts, text)
		}

		ev := model.Event{
			EventID: ItemGUID(item),
			Title:   item.Title,
			Date:    date,
			RawText: strings.Join(parts, "\n"),
		}
		if item.Link != "" {
			ev.Links = []string{item.Link}
		}

		if ref := documentURL(item); ref != "" && !skip[date] {
			data, err := get(ctx, f.client, ref, maxDocumentSize)
			if err != nil {
				f.log.Warn("document download failed", "url", ref, "error", err)
			} else {
				ev.DocumentText = f.docs.Text(data)
				ev.DocumentRef = ref
			}
		}
		events = append(events, ev)
	}
	return events, nil
}

// ItemGUID returns the GUID for a feed item.
// If the item has no GUID, a SHA-256 hash of title+link is used.
func ItemGUID(item *gofeed.Item) string {
	if item.GUID != "" {
		return item.GUID
	}
	h := sha256.Sum256([]byte(item.Title + "|" + item.Link))
	return fmt.Sprintf("sha256:%x", h[:16])
}

func itemDate(item *gofeed.Item) string {
	switch {
	case item.PublishedParsed != nil:
		return item.PublishedParsed.UTC().Format(model.DateLayout)
	case item.UpdatedParsed != nil:
		return item.UpdatedParsed.UTC().Format(model.DateLayout)
	}
	return ""
}

func documentURL(item *gofeed.Item) string {
	for _, enc := range item.Enclosures {
		if enc == nil {
			continue
		}
		if enc.Type == "application/pdf" || strings.HasSuffix(strings.ToLower(enc.URL), ".pdf") {
			return enc.URL
		}
	}
	if strings.HasSuffix(strings.ToLower(item.Link), ".pdf") {
		return item.Link
	}
	return ""
}
