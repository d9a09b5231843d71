package export

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"poppy/api/internal/store"
)

type fakeDataStore struct {
	idea         store.Idea
	history      []store.HistoryEntry
	contributors []store.Contributor
}

func (f *fakeDataStore) GetIdea(context.Context, string) (store.Idea, error) {
	return f.idea, nil
}
func (f *fakeDataStore) ListHistory(context.Context, string) ([]store.HistoryEntry, error) {
	return f.history, nil
}
func (f *fakeDataStore) ListContributors(context.Context, string) ([]store.Contributor, error) {
	return f.contributors, nil
}

func testDataStore() *fakeDataStore {
	confidence := 0.82
	return &fakeDataStore{
		idea: store.Idea{
			ID:        "idea_1",
			Title:     "Garden Planner!",
			Content:   "An app that plans raised beds by sun exposure.",
			Category:  "apps",
			OwnerID:   "user-1",
			CreatedAt: time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC),
			UpdatedAt: time.Date(2026, 4, 2, 14, 30, 0, 0, time.UTC),
		},
		history: []store.HistoryEntry{
			{ID: 2, EventType: store.EventContinuation, ChangeSummary: "added watering notes", ConfidenceScore: &confidence},
			{ID: 1, EventType: store.EventInitialCreation},
		},
		contributors: []store.Contributor{
			{IdeaID: "idea_1", UserID: "user-1", DisplayName: "Avery", ContributionType: store.ContributionOriginal},
			{IdeaID: "idea_1", UserID: "user-2", DisplayName: "Blake", ContributionType: store.ContributionEdit},
		},
	}
}

func TestExportMarkdown(t *testing.T) {
	svc := NewService(testDataStore(), nil)

	result, err := svc.Export(context.Background(), "idea_1", "markdown")
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	if result.Filename != "garden-planner.md" {
		t.Fatalf("unexpected filename: %q", result.Filename)
	}
	if result.MimeType != "text/markdown; charset=utf-8" {
		t.Fatalf("unexpected mime type: %q", result.MimeType)
	}
	rendered := string(result.Data)
	for _, want := range []string{"Garden Planner!", "raised beds", "Avery", "Blake"} {
		if !strings.Contains(rendered, want) {
			t.Fatalf("expected rendered markdown to contain %q:\n%s", want, rendered)
		}
	}
}

func TestExportDefaultsToMarkdown(t *testing.T) {
	svc := NewService(testDataStore(), nil)

	result, err := svc.Export(context.Background(), "idea_1", "")
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	if !strings.HasSuffix(result.Filename, ".md") {
		t.Fatalf("expected markdown default, got %q", result.Filename)
	}
}

func TestExportJSON(t *testing.T) {
	svc := NewService(testDataStore(), nil)

	result, err := svc.Export(context.Background(), "idea_1", "json")
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	if result.MimeType != "application/json" {
		t.Fatalf("unexpected mime type: %q", result.MimeType)
	}

	var payload struct {
		Idea         store.Idea           `json:"idea"`
		History      []store.HistoryEntry `json:"history"`
		Contributors []store.Contributor  `json:"contributors"`
	}
	if err := json.Unmarshal(result.Data, &payload); err != nil {
		t.Fatalf("invalid JSON export: %v", err)
	}
	if payload.Idea.ID != "idea_1" {
		t.Fatalf("unexpected idea in export: %+v", payload.Idea)
	}
	if len(payload.History) != 2 || len(payload.Contributors) != 2 {
		t.Fatalf("expected full history and contributors, got %d and %d", len(payload.History), len(payload.Contributors))
	}
}

func TestExportRejectsUnknownFormat(t *testing.T) {
	svc := NewService(testDataStore(), nil)

	_, err := svc.Export(context.Background(), "idea_1", "pdf")
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
	}
}

func TestSafeFilename(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Garden Planner!", "garden-planner"},
		{"   ", "---"},
		{"日本語", "idea"},
		{"a_b-c d", "a-b-c-d"},
	}
	for _, tc := range cases {
		if got := safeFilename(tc.in); got != tc.want {
			t.Fatalf("safeFilename(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
