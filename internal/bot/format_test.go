package bot

import (
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/google/go-cmp/cmp"

	"property_agent/internal/model"
)

const site = "https://www.sheroot.example"

func TestFormatProperty(t *testing.T) {
	tests := []struct {
		name string
		prop model.Property
		want string
	}{
		{
			name: "court reserve with document",
			prop: model.Property{
				SaleDate:     "2025-03-14",
				Number:       3,
				RawText:      "450 m² Freestanding house, 3 bedrooms\nR 850,000 Court Reserve\n14 Ontdekkers Road, Roodepoort",
				SizeM2:       model.Float(450),
				ReservePrice: model.Float(850000),
				ReserveKind:  model.ReserveCourt,
				SourceRef:    "https://example.com/2025-03-14.pdf",
			},
			want: "🏠 *Sale in Execution — 14 Mar 2025*\n" +
				"450 m² Freestanding house, 3 bedrooms\n\n14 Ontdekkers Road, Roodepoort\n" +
				"📐 450m²\n" +
				"💰 Court Reserve: R 850,000\n" +
				"🔗 [Full property list](https://example.com/2025-03-14.pdf)",
		},
		{
			name: "no court reserve without document",
			prop: model.Property{
				SaleDate:    "2025-03-14",
				Number:      1,
				RawText:     "12 Main Road, Florida Park, Roodepoort\nErf 1234, 850 m²\nNo Court Reserve",
				SizeM2:      model.Float(850),
				ReserveKind: model.ReserveNone,
			},
			want: "🏠 *Sale in Execution — 14 Mar 2025*\n" +
				"12 Main Road, Florida Park, Roodepoort\nErf 1234, 850 m²\n" +
				"📐 850m²\n" +
				"⚡ *NO COURT RESERVE — any bid wins*\n" +
				"🔗 [Source](" + site + ")",
		},
		{
			name: "markdown escaped and size omitted",
			prop: model.Property{
				SaleDate:    "2025-03-14",
				Number:      2,
				RawText:     "Unit_4 *Sunset* [Villas]\nBank Reserve",
				ReserveKind: model.ReserveBank,
			},
			want: "🏠 *Sale in Execution — 14 Mar 2025*\n" +
				"Unit\\_4 \\*Sunset\\* \\[Villas]\n" +
				"🏦 *Bank Reserve* (floor set by bank)\n" +
				"🔗 [Source](" + site + ")",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FormatProperty(tt.prop, site)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("FormatProperty mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestFormatPropertyTruncatesBody(t *testing.T) {
	p := model.Property{
		SaleDate:    "2025-03-14",
		RawText:     strings.Repeat("a", 700),
		ReserveKind: model.ReserveUnknown,
	}
	got := FormatProperty(p, site)
	if !strings.Contains(got, strings.Repeat("a", 597)+"...") {
		t.Errorf("body not truncated to 600 characters:\n%s", got)
	}
	if strings.Contains(got, strings.Repeat("a", 598)) {
		t.Error("body longer than 600 characters")
	}
	if utf8.RuneCountInString(got) > messageLimit {
		t.Errorf("message exceeds %d characters", messageLimit)
	}
}

func TestReserveDisplay(t *testing.T) {
	tests := []struct {
		name string
		prop model.Property
		want string
	}{
		{name: "none", prop: model.Property{ReserveKind: model.ReserveNone}, want: "⚡ *NO COURT RESERVE — any bid wins*"},
		{name: "bank", prop: model.Property{ReserveKind: model.ReserveBank}, want: "🏦 *Bank Reserve* (floor set by bank)"},
		{
			name: "court with price",
			prop: model.Property{ReserveKind: model.ReserveCourt, ReservePrice: model.Float(1250000)},
			want: "💰 Court Reserve: R 1,250,000",
		},
		{name: "court without price", prop: model.Property{ReserveKind: model.ReserveCourt}, want: "❓ Reserve unknown"},
		{name: "unknown", prop: model.Property{ReserveKind: model.ReserveUnknown}, want: "❓ Reserve unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, ReserveDisplay(tt.prop)); diff != "" {
				t.Errorf("ReserveDisplay mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestFormatListing(t *testing.T) {
	tests := []struct {
		name    string
		listing model.Listing
		want    string
	}{
		{
			name: "full listing",
			listing: model.Listing{
				Date:        "2025-03-21",
				Location:    "Honeydew Ridge",
				Price:       model.Float(450000),
				Category:    "sectional title",
				ErfNumber:   "ERF 55",
				Description: "A unit in Honeydew Ridge",
			},
			want: "🏠 *NEW SALE IN EXECUTION MATCH*\n" +
				"📅 Date: 2025-03-21\n" +
				"📍 Location: Honeydew Ridge\n" +
				"💰 Price: R 450,000\n" +
				"🏗 Type: Sectional Title\n" +
				"📝 ERF: ERF 55\n" +
				"---\nA unit in Honeydew Ridge\n---\n" +
				"🔗 [Source](" + site + ")",
		},
		{
			name:    "empty listing",
			listing: model.Listing{},
			want: "🏠 *NEW SALE IN EXECUTION MATCH*\n" +
				"📅 Date: TBD\n" +
				"📍 Location: Unknown\n" +
				"💰 Price: Price not listed\n" +
				"🏗 Type: N/A\n" +
				"📝 ERF: N/A\n" +
				"---\n\n---\n" +
				"🔗 [Source](" + site + ")",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, FormatListing(tt.listing, site)); diff != "" {
				t.Errorf("FormatListing mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestFormatPreference(t *testing.T) {
	tests := []struct {
		name string
		pref *model.Preference
		want string
	}{
		{name: "nil", pref: nil, want: "No preferences set."},
		{
			name: "empty active preference",
			pref: &model.Preference{Active: true},
			want: "💰 Price range: any – any\n📍 Location keywords: any",
		},
		{
			name: "full",
			pref: &model.Preference{
				MinPrice: model.Float(500000),
				MaxPrice: model.Float(1500000),
				Keywords: []string{"Roodepoort", "Krugersdorp"},
			},
			want: "💰 Price range: R 500,000 – R 1,500,000\n📍 Location keywords: Roodepoort, Krugersdorp",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, FormatPreference(tt.pref)); diff != "" {
				t.Errorf("FormatPreference mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestFormatRunReport(t *testing.T) {
	got := FormatRunReport(model.RunReport{
		RunID:        "run-1",
		Events:       2,
		CachedEvents: 1,
		Parsed:       5,
		Stored:       5,
		SkippedSeen:  3,
		Unmatched:    1,
		Notified:     4,
		Sent:         6,
		SendFailures: 1,
		Duration:     1500 * time.Millisecond,
	})
	want := "✅ Run run-1 finished in 1.5s\n" +
		"Events: 2 (1 from cache)\n" +
		"Lots parsed: 5, new: 5, listings: 0\n" +
		"Notified: 4 (sent 6, failed 1)\n" +
		"Already seen: 3, unmatched: 1"
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("FormatRunReport mismatch (-want +got):\n%s", diff)
	}
}

func TestRand(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{0, "R 0"},
		{999.5, "R 1,000"},
		{850000, "R 850,000"},
		{1250000.4, "R 1,250,000"},
	}
	for _, tt := range tests {
		if diff := cmp.Diff(tt.want, Rand(tt.in)); diff != "" {
			t.Errorf("Rand(%v) mismatch (-want +got):\n%s", tt.in, diff)
		}
	}
}

func TestHumanDate(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"2025-03-14", "14 Mar 2025"},
		{"soon", "soon"},
		{"", "TBD"},
	}
	for _, tt := range tests {
		if diff := cmp.Diff(tt.want, humanDate(tt.in)); diff != "" {
			t.Errorf("humanDate(%q) mismatch (-want +got):\n%s", tt.in, diff)
		}
	}
}
