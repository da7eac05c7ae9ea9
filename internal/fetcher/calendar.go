package fetcher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"property_agent/internal/document"
	"property_agent/internal/model"
)

type calendarResponse struct {
	Project struct {
		Data struct {
			Events []calendarEvent `json:"events"`
		} `json:"data"`
	} `json:"project"`
}

type calendarEvent struct {
	ID           json.RawMessage `json:"id"`
	Title        string          `json:"title"`
	StartDate    string          `json:"startDate"`
	Start        int64           `json:"start"`
	Location     string          `json:"location"`
	Description  string          `json:"description"`
	StartHour    int             `json:"startHour"`
	StartMinutes int             `json:"startMinutes"`
	EndHour      int             `json:"endHour"`
	EndMinutes   int             `json:"endMinutes"`
	Links        []struct {
		URL string `json:"url"`
	} `json:"links"`
}

// Calendar reads sale events from an embedded calendar widget's data
// endpoint and follows each event's links to the published lot list.
type Calendar struct {
	client  HTTPClient
	apiURL  string
	siteURL *url.URL
	loc     *time.Location
	docs    document.Extractor
	log     *slog.Logger
	now     func() time.Time
}

// NewCalendar creates a calendar source. Relative event links are resolved
// against siteURL; loc decides which day is today.
func NewCalendar(client HTTPClient, apiURL, siteURL string, loc *time.Location, docs document.Extractor, log *slog.Logger) (*Calendar, error) {
	base, err := url.Parse(siteURL)
	if err != nil {
		return nil, fmt.Errorf("parse site url: %w", err)
	}
	return &Calendar{
		client:  client,
		apiURL:  apiURL,
		siteURL: base,
		loc:     loc,
		docs:    docs,
		log:     log,
		now:     time.Now,
	}, nil
}

// Fetch returns upcoming events. Events dated before today are dropped. A
// failing linked page only loses that page's text.
func (c *Calendar) Fetch(ctx context.Context, skip map[string]bool) ([]model.Event, error) {
	body, err := get(ctx, c.client, c.apiURL, maxIndexSize)
	if err != nil {
		return nil, fmt.Errorf("fetch calendar: %w", err)
	}

	var resp calendarResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode calendar: %w", err)
	}

	raw := resp.Project.Data.Events
	c.log.Info("calendar loaded", "events", len(raw))

	today := model.DateIn(c.now(), c.loc)
	var events []model.Event
	for _, ce := range raw {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		date := ce.StartDate
		if date == "" && ce.Start > 0 {
			date = time.UnixMilli(ce.Start).UTC().Format(model.DateLayout)
		}
		if model.IsPast(date, today) {
			c.log.Debug("skipping past event", "title", ce.Title, "date", date)
			continue
		}

		events = append(events, c.event(ctx, ce, date, skip[date]))
	}
	return events, nil
}

func (c *Calendar) event(ctx context.Context, ce calendarEvent, date string, cached bool) model.Event {
	parts := []string{
		"Title: " + ce.Title,
		"Date: " + date,
		fmt.Sprintf("Time: %02d:%02d – %02d:%02d", ce.StartHour, ce.StartMinutes, ce.EndHour, ce.EndMinutes),
		"Location: " + ce.Location,
	}
	if desc := plainText(ce.Description); desc != "" {
		parts = append(parts, desc)
	}

	ev := model.Event{
		EventID:  eventID(ce.ID),
		Title:    ce.Title,
		Date:     date,
		Location: ce.Location,
	}
	for _, l := range ce.Links {
		if l.URL != "" {
			ev.Links = append(ev.Links, resolveLink(c.siteURL, l.URL))
		}
	}

	if cached {
		c.log.Info("skipping documents for cached date", "date", date)
	} else {
		for _, link := range ev.Links {
			c.log.Info("fetching linked page", "url", link)
			text, ref := c.linkedText(ctx, link)
			if text != "" {
				parts = append(parts, "\n--- Property List ---\n"+text)
				ev.DocumentText = text
			}
			if ref != "" {
				ev.DocumentRef = ref
			}
		}
	}

	ev.RawText = strings.Join(parts, "\n")
	return ev
}

// linkedText returns the text of a linked page and the reference it came
// from. A PDF linked from the page takes precedence over the page body.
func (c *Calendar) linkedText(ctx context.Context, pageURL string) (string, string) {
	body, err := get(ctx, c.client, pageURL, maxPageSize)
	if err != nil {
		c.log.Warn("could not fetch linked page", "url", pageURL, "error", err)
		return "", ""
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		c.log.Warn("could not parse linked page", "url", pageURL, "error", err)
		return "", ""
	}

	if href := pdfHref(doc); href != "" {
		base, _ := url.Parse(pageURL)
		pdfURL := resolveLink(base, href)
		data, err := get(ctx, c.client, pdfURL, maxDocumentSize)
		if err == nil {
			text := c.docs.Text(data)
			c.log.Info("document extracted", "url", pdfURL, "bytes", len(data), "chars", len(text))
			return text, pdfURL
		}
		c.log.Warn("document download failed", "url", pdfURL, "error", err)
	}

	return bodyText(doc), pageURL
}

// resolveLink turns a possibly relative link into an absolute URL. Bare
// "www." hosts are treated as https.
func resolveLink(base *url.URL, link string) string {
	link = strings.TrimSpace(link)
	if strings.HasPrefix(strings.ToLower(link), "www.") {
		return "https://" + link
	}
	ref, err := url.Parse(link)
	if err != nil || base == nil {
		return link
	}
	return base.ResolveReference(ref).String()
}

func pdfHref(doc *goquery.Document) string {
	var href string
	doc.Find("a[href]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		v, _ := s.Attr("href")
		if strings.HasSuffix(strings.ToLower(strings.TrimSpace(v)), ".pdf") {
			href = strings.TrimSpace(v)
			return false
		}
		return true
	})
	return href
}

// bodyText renders the visible body text with one line per block element.
func bodyText(doc *goquery.Document) string {
	doc.Find("script, style, noscript").Remove()
	doc.Find("br").ReplaceWithHtml("\n")
	doc.Find("p, div, li, tr, h1, h2, h3, h4, h5, h6").AppendHtml("\n")
	return cleanLines(doc.Find("body").Text())
}

func eventID(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}
