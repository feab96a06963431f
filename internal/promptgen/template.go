package promptgen

import (
	"regexp"
	"strconv"
	"strings"
)

// A prompt template may contain a "::"-delimited sequence of sub-templates.
// A leading integer on a segment sets the sub-batch count for that segment
// and for the one before it; segments without an explicit count use the
// overall requested count. Example with default count 3:
//
//	"A::2B::C" -> A x2, B x2, C x3, combined by cross product (12 results)
//
// Cross-product combination kicks in when any explicit count differs from
// the default; otherwise results are merged position by position.

type segment struct {
	count    int
	template string
}

var leadingDigits = regexp.MustCompile(`^[0-9]+`)

func parseSegments(template string, defaultCount int) ([]segment, bool) {
	parts := strings.Split(template, "::")
	counts := make([]int, len(parts))
	for i := range counts {
		counts[i] = defaultCount
	}
	for i := 1; i < len(parts); i++ {
		if digits := leadingDigits.FindString(parts[i]); digits != "" {
			if n, err := strconv.Atoi(digits); err == nil && n > 0 {
				counts[i-1] = n
				counts[i] = n
			}
		}
	}

	explode := false
	for _, n := range counts {
		if n != defaultCount {
			explode = true
			break
		}
	}

	segments := make([]segment, 0, len(parts))
	for i, part := range parts {
		text := strings.TrimSpace(leadingDigits.ReplaceAllString(part, ""))
		if text == "" {
			continue
		}
		segments = append(segments, segment{count: counts[i], template: text})
	}
	return segments, explode
}

// joinAnswers concatenates two answer fragments. The separator is ", "
// unless the left side already ends in punctuation that reads as a break.
func joinAnswers(left, right string) string {
	separator := ", "
	if strings.HasSuffix(left, ",") || strings.HasSuffix(left, ".") {
		separator = " "
	}
	return left + separator + right
}

// crossJoin pairs every accumulated result with every new answer.
func crossJoin(results, answers []string) []string {
	combined := make([]string, 0, len(results)*len(answers))
	for _, result := range results {
		for _, answer := range answers {
			combined = append(combined, joinAnswers(result, answer))
		}
	}
	return combined
}

// positionalJoin merges answers index by index. Positions past the shorter
// list are left unmodified.
func positionalJoin(results, answers []string) []string {
	for i, answer := range answers {
		if i >= len(results) {
			break
		}
		results[i] = joinAnswers(results[i], answer)
	}
	return results
}

// substitutePrompt replaces the {prompt} placeholder with the quoted
// caller-supplied prompt text.
func substitutePrompt(template, originalPrompt string) string {
	return strings.ReplaceAll(template, "{prompt}", `"`+originalPrompt+`"`)
}

var (
	punctuatedNewline = regexp.MustCompile(`([.:,])\s*\n\s*`)
	bareNewline       = regexp.MustCompile(`\s*\n\s*`)
	runsOfSpace       = regexp.MustCompile(`\s+`)
)

// normalizeText folds a multi-line template into a single sentence-shaped
// line before it is sent to the model.
func normalizeText(text string) string {
	text = punctuatedNewline.ReplaceAllString(text, "$1 ")
	text = bareNewline.ReplaceAllString(text, ". ")
	text = runsOfSpace.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}
