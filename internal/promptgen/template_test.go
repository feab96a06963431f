package promptgen

import (
	"reflect"
	"testing"
)

func TestParseSegmentsWithLookaheadCount(t *testing.T) {
	segments, explode := parseSegments("A::2B::C", 3)
	want := []segment{
		{count: 2, template: "A"},
		{count: 2, template: "B"},
		{count: 3, template: "C"},
	}
	if !reflect.DeepEqual(segments, want) {
		t.Fatalf("segments = %+v, want %+v", segments, want)
	}
	if !explode {
		t.Fatal("expected cross-product combination when an explicit count differs from the default")
	}
}

func TestParseSegmentsWithoutExplicitCounts(t *testing.T) {
	segments, explode := parseSegments("a castle::at night", 3)
	want := []segment{
		{count: 3, template: "a castle"},
		{count: 3, template: "at night"},
	}
	if !reflect.DeepEqual(segments, want) {
		t.Fatalf("segments = %+v, want %+v", segments, want)
	}
	if explode {
		t.Fatal("expected positional combination when no explicit count is present")
	}
}

func TestParseSegmentsExplicitCountEqualToDefaultStaysPositional(t *testing.T) {
	_, explode := parseSegments("A::3B", 3)
	if explode {
		t.Fatal("explicit count equal to the default should not force a cross product")
	}
}

func TestParseSegmentsDropsEmptySegments(t *testing.T) {
	segments, _ := parseSegments("A::::B", 2)
	if len(segments) != 2 {
		t.Fatalf("segments = %+v, want 2 entries", segments)
	}
}

func TestJoinAnswersSeparatorRule(t *testing.T) {
	if got := joinAnswers("a castle", "at night"); got != "a castle, at night" {
		t.Fatalf("joinAnswers = %q", got)
	}
	if got := joinAnswers("a castle,", "at night"); got != "a castle, at night" {
		t.Fatalf("joinAnswers after comma = %q", got)
	}
	if got := joinAnswers("a castle.", "at night"); got != "a castle. at night" {
		t.Fatalf("joinAnswers after period = %q", got)
	}
}

func TestCrossJoinPairsEverything(t *testing.T) {
	got := crossJoin([]string{"a", "b"}, []string{"x", "y", "z"})
	if len(got) != 6 {
		t.Fatalf("crossJoin produced %d results, want 6", len(got))
	}
	if got[0] != "a, x" || got[5] != "b, z" {
		t.Fatalf("crossJoin = %v", got)
	}
}

func TestPositionalJoinLeavesMissingPositionsUnmodified(t *testing.T) {
	got := positionalJoin([]string{"a", "b", "c"}, []string{"x"})
	want := []string{"a, x", "b", "c"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("positionalJoin = %v, want %v", got, want)
	}
}

func TestSubstitutePromptQuotes(t *testing.T) {
	got := substitutePrompt("variations of {prompt} in winter", "a red barn")
	want := `variations of "a red barn" in winter`
	if got != want {
		t.Fatalf("substitutePrompt = %q, want %q", got, want)
	}
}

func TestNormalizeText(t *testing.T) {
	got := normalizeText("first line:\nsecond line\nthird   line")
	want := "first line: second line. third line"
	if got != want {
		t.Fatalf("normalizeText = %q, want %q", got, want)
	}
}
