package extract

import (
	"os"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"property_agent/internal/model"
)

var ignoreRawText = cmpopts.IgnoreFields(model.Property{}, "RawText", "FirstSeenAt")

func loadFixture(t *testing.T) string {
	t.Helper()
	data, err := os.ReadFile("../../testdata/sale_notice.txt")
	if err != nil {
		t.Fatalf("read fixture: %v", err)
	}
	return string(data)
}

func TestPropertiesFromNotice(t *testing.T) {
	text := loadFixture(t)
	const ref = "https://example.com/notice.pdf"

	got := Properties(text, "2025-03-14", ref)

	want := []model.Property{
		{SaleDate: "2025-03-14", Number: 1, SizeM2: model.Float(850), ReserveKind: model.ReserveNone, SourceRef: ref},
		{SaleDate: "2025-03-14", Number: 2, SizeM2: model.Float(95), ReserveKind: model.ReserveBank, SourceRef: ref},
		{SaleDate: "2025-03-14", Number: 3, SizeM2: model.Float(450), ReservePrice: model.Float(850000), ReserveKind: model.ReserveCourt, SourceRef: ref},
		{SaleDate: "2025-03-14", Number: 5, SizeM2: model.Float(1250), ReserveKind: model.ReserveUnknown, SourceRef: ref},
		{SaleDate: "2025-03-14", Number: 6, SizeM2: model.Float(72), ReservePrice: model.Float(1250000), ReserveKind: model.ReserveCourt, SourceRef: ref},
	}
	if diff := cmp.Diff(want, got, ignoreRawText); diff != "" {
		t.Errorf("Properties() mismatch (-want +got):\n%s", diff)
	}

	for _, p := range got {
		if strings.Contains(p.RawText, "voetstoots") || strings.Contains(p.RawText, "NO IMAGE") {
			t.Errorf("lot %d raw text leaked outside the lot section: %q", p.Number, p.RawText)
		}
	}
}

func TestPropertiesEndToEndScenario(t *testing.T) {
	text := "3. 450 m² Freestanding house R 850,000 Court Reserve 14 Main Road Roodepoort"

	got := Properties(text, "2025-03-14", "")

	want := []model.Property{{
		SaleDate:     "2025-03-14",
		Number:       3,
		RawText:      "450 m² Freestanding house R 850,000 Court Reserve 14 Main Road Roodepoort",
		SizeM2:       model.Float(450),
		ReservePrice: model.Float(850000),
		ReserveKind:  model.ReserveCourt,
	}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Properties() mismatch (-want +got):\n%s", diff)
	}
}

func TestPropertiesEdgeCases(t *testing.T) {
	tests := []struct {
		name        string
		text        string
		wantNumbers []int
	}{
		{
			name:        "empty text",
			text:        "",
			wantNumbers: nil,
		},
		{
			name:        "no numbered entries",
			text:        "Nothing to see here, just a paragraph of prose.",
			wantNumbers: nil,
		},
		{
			name:        "short entry skipped, later entries kept",
			text:        "1. tiny\n2. A long enough entry text with Bank Reserve\n3. Another long enough entry, No Court Reserve",
			wantNumbers: []int{2, 3},
		},
		{
			name:        "zero sequence number skipped",
			text:        "0. This block has a zero number and is long\n4. This block has a valid number and is long",
			wantNumbers: []int{4},
		},
		{
			name:        "duplicate number keeps first",
			text:        "2. First copy of the second entry, long enough\n2. Second copy of the second entry, long enough",
			wantNumbers: []int{2},
		},
		{
			name:        "number must start the line",
			text:        "1. A normal entry that mentions lot 2. in passing only",
			wantNumbers: []int{1},
		},
		{
			name:        "three digit numbers are not entry markers",
			text:        "100. Not an entry marker at all but long enough",
			wantNumbers: nil,
		},
		{
			name:        "end marker without start marker",
			text:        "1. Kept entry with enough characters\nRULES OF SALE IN EXECUTION\n2. Dropped entry with enough characters",
			wantNumbers: []int{1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got []int
			for _, p := range Properties(tt.text, "2025-01-01", "") {
				got = append(got, p.Number)
			}
			if diff := cmp.Diff(tt.wantNumbers, got); diff != "" {
				t.Errorf("numbers mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestClassifyReserve(t *testing.T) {
	tests := []struct {
		name      string
		text      string
		wantKind  model.ReserveKind
		wantPrice *float64
	}{
		{name: "no court reserve", text: "House, 300 m²\nNo Court Reserve", wantKind: model.ReserveNone},
		{name: "no court reserve lowercase", text: "sold with no court reserve", wantKind: model.ReserveNone},
		{name: "bank reserve with digits", text: "Erf 991, 120 m² Bank Reserve", wantKind: model.ReserveBank},
		{name: "court reserve with comma", text: "R 850,000 Court Reserve", wantKind: model.ReserveCourt, wantPrice: model.Float(850000)},
		{name: "court reserve with spaces and cents", text: "R1 250 000.00 Court Reserve", wantKind: model.ReserveCourt, wantPrice: model.Float(1250000)},
		{name: "court reserve with dash", text: "R 300 000 – Court Reserve", wantKind: model.ReserveCourt, wantPrice: model.Float(300000)},
		{name: "court reserve on next line", text: "R 95,000\nCourt Reserve", wantKind: model.ReserveCourt, wantPrice: model.Float(95000)},
		{name: "no court reserve beats amount", text: "R 500,000 Court Reserve waived: No Court Reserve", wantKind: model.ReserveNone},
		{name: "bank reserve beats amount", text: "Bank Reserve; previously R 500,000 Court Reserve", wantKind: model.ReserveBank},
		{name: "amount without reserve phrase", text: "Municipal value R 700 000", wantKind: model.ReserveUnknown},
		{name: "nothing", text: "Reserve to be confirmed", wantKind: model.ReserveUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kind, price := ClassifyReserve(tt.text)
			if diff := cmp.Diff(tt.wantKind, kind); diff != "" {
				t.Errorf("kind mismatch (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff(tt.wantPrice, price); diff != "" {
				t.Errorf("price mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestReserveRulesOrder(t *testing.T) {
	var got []string
	for _, r := range ReserveRules() {
		got = append(got, r.Name)
	}
	want := []string{"no_court_reserve", "bank_reserve", "court_reserve_amount"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("rule order mismatch (-want +got):\n%s", diff)
	}
}

func TestParseSize(t *testing.T) {
	tests := []struct {
		name string
		text string
		want *float64
	}{
		{name: "spaced unit", text: "450 m²", want: model.Float(450)},
		{name: "attached unit", text: "Extent 612m²", want: model.Float(612)},
		{name: "thousands separator", text: "1 250 m² stand", want: model.Float(1250)},
		{name: "comma separator", text: "2,004 m²", want: model.Float(2004)},
		{name: "unit required", text: "450 square", want: nil},
		{name: "erf before size", text: "Erf 1234, 850 m²", want: model.Float(850)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, ParseSize(tt.text)); diff != "" {
				t.Errorf("ParseSize() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
