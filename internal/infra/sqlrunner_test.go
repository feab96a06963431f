package infra

import (
	"strings"
	"testing"

	"renderworker/internal/sqlinline"
)

func TestExtractMarker(t *testing.T) {
	marker, trimmed, err := extractMarker(sqlinline.QClaimJob)
	if err != nil {
		t.Fatalf("extractMarker: %v", err)
	}
	if marker != "a365f7a5-58e2-471e-8eb7-b8b627ce6e6c" {
		t.Fatalf("marker = %q", marker)
	}
	if strings.Contains(trimmed, "--sql") {
		t.Fatalf("marker line not stripped: %q", trimmed)
	}
	if !strings.Contains(trimmed, "update render_jobs") {
		t.Fatalf("statement body lost: %q", trimmed)
	}
}

func TestExtractMarkerRejectsUnmarkedQueries(t *testing.T) {
	for _, query := range []string{
		"select 1;",
		"--sql not-a-uuid\nselect 1;",
		"",
	} {
		if _, _, err := extractMarker(query); err == nil {
			t.Errorf("extractMarker(%q) succeeded, want error", query)
		}
	}
}

func TestInlineQueriesCarryUniqueMarkers(t *testing.T) {
	queries := []string{
		sqlinline.QFetchEligiblePending,
		sqlinline.QClaimJob,
		sqlinline.QMarkCompleted,
		sqlinline.QMarkFailed,
		sqlinline.QFetchStuck,
		sqlinline.QReapStuck,
		sqlinline.QCountByStatus,
	}
	seen := map[string]bool{}
	for _, query := range queries {
		marker, _, err := extractMarker(query)
		if err != nil {
			t.Fatalf("extractMarker: %v", err)
		}
		if seen[marker] {
			t.Fatalf("duplicate marker %s", marker)
		}
		seen[marker] = true
	}
}
