package main

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"property_agent/internal/extract"
	"property_agent/internal/storage"
)

const noticePath = "../../testdata/sale_notice.txt"

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func clearConfigEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{"CONFIG_FILE", "DATABASE_PATH", "SOURCE_KIND", "SCHEDULE", "TIMEZONE"} {
		t.Setenv(key, "")
	}
}

func TestExtractJSON(t *testing.T) {
	out, err := execute(t, "extract", noticePath, "--date", "2025-03-14", "--json")
	if err != nil {
		t.Fatalf("extract: %v\n%s", err, out)
	}

	var lots []lotOutput
	if err := json.Unmarshal([]byte(out), &lots); err != nil {
		t.Fatalf("decode output: %v\n%s", err, out)
	}

	type summary struct {
		Number      int
		Kind        string
		Opportunity bool
	}
	var got []summary
	for _, l := range lots {
		if l.SaleDate != "2025-03-14" {
			t.Errorf("lot %d sale date = %q, want 2025-03-14", l.Number, l.SaleDate)
		}
		if len(l.Hash) != 64 {
			t.Errorf("lot %d hash %q is not a hex sha256", l.Number, l.Hash)
		}
		got = append(got, summary{Number: l.Number, Kind: l.ReserveKind, Opportunity: l.Opportunity})
	}

	want := []summary{
		{Number: 1, Kind: "none", Opportunity: true},
		{Number: 2, Kind: "bank", Opportunity: true},
		{Number: 3, Kind: "court"},
		{Number: 5, Kind: "unknown"},
		{Number: 6, Kind: "court"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("lots mismatch (-want +got):\n%s", diff)
	}
}

func TestExtractText(t *testing.T) {
	out, err := execute(t, "extract", noticePath, "--date", "2025-03-14")
	if err != nil {
		t.Fatalf("extract: %v\n%s", err, out)
	}
	for _, want := range []string{
		"🏠 *Sale in Execution — 14 Mar 2025*",
		"⚡ *NO COURT RESERVE — any bid wins*",
		"🔗 [Full property list](sale_notice.txt)",
		"5 lots extracted",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestExtractErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{name: "missing file argument", args: []string{"extract"}},
		{name: "unreadable file", args: []string{"extract", filepath.Join(t.TempDir(), "missing.pdf")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := execute(t, tt.args...); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestTowns(t *testing.T) {
	clearConfigEnv(t)

	out, err := execute(t, "towns", "--json")
	if err != nil {
		t.Fatalf("towns: %v\n%s", err, out)
	}
	var got []string
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("decode output: %v\n%s", err, out)
	}
	if diff := cmp.Diff(extract.DefaultTowns, got); diff != "" {
		t.Errorf("towns mismatch (-want +got):\n%s", diff)
	}
}

func TestCategories(t *testing.T) {
	out, err := execute(t, "categories")
	if err != nil {
		t.Fatalf("categories: %v\n%s", err, out)
	}
	want := strings.Join(extract.Categories(), "\n") + "\n"
	if diff := cmp.Diff(want, out); diff != "" {
		t.Errorf("output mismatch (-want +got):\n%s", diff)
	}
}

func TestDBVersion(t *testing.T) {
	clearConfigEnv(t)
	path := filepath.Join(t.TempDir(), "agent.db")

	if _, err := execute(t, "db-version", "--db", path); err == nil {
		t.Error("expected error for missing database")
	}

	store, err := storage.NewSQLite(path)
	if err != nil {
		t.Fatalf("create database: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close database: %v", err)
	}

	out, err := execute(t, "db-version", "--db", path)
	if err != nil {
		t.Fatalf("db-version: %v\n%s", err, out)
	}
	if diff := cmp.Diff(path+": version 1\n", out); diff != "" {
		t.Errorf("output mismatch (-want +got):\n%s", diff)
	}
}

func TestRunOnceRequiresToken(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("TELEGRAM_BOT_TOKEN", "")

	_, err := execute(t, "run-once")
	if err == nil || !strings.Contains(err.Error(), "TELEGRAM_BOT_TOKEN") {
		t.Errorf("expected token error, got %v", err)
	}
}
