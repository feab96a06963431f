// Package extract recovers an ordered batch of strings from free-form model
// output that was asked to produce JSON but does not reliably comply. It
// targets the specific defect classes seen in practice (missing commas
// between adjacent containers or quoted strings, missing outer brackets), not
// general JSON repair.
package extract

import (
	"encoding/json"
	"fmt"
	"io"
	"regexp"
	"strings"

	"renderworker/internal/domain"
)

var (
	arrayPattern  = regexp.MustCompile(`(?s)\[.*\]`)
	objectPattern = regexp.MustCompile(`(?s)\{.*\}`)

	adjacentObjects = regexp.MustCompile(`\}\s*\{`)
	adjacentArrays  = regexp.MustCompile(`\]\s*\[`)
	adjacentStrings = regexp.MustCompile(`"\s*"`)
)

// Batch locates the first JSON array (or, failing that, object) literal in
// the text, repairs common formatting defects, and returns every string leaf
// in document order. Non-string leaves are dropped, object keys are not
// collected.
func Batch(text string) ([]string, error) {
	fragment := arrayPattern.FindString(text)
	if fragment == "" {
		fragment = objectPattern.FindString(text)
	}
	if fragment == "" {
		return nil, fmt.Errorf("extract: no JSON structure found in response: %w", domain.ErrMalformedResponse)
	}

	fragment = repair(fragment)

	items, err := flatten(fragment)
	if err == nil {
		return items, nil
	}
	// A bare comma-separated list is missing its enclosing brackets.
	items, wrapErr := flatten("[" + fragment + "]")
	if wrapErr != nil {
		return nil, fmt.Errorf("extract: parse failed (%v): %w", err, domain.ErrMalformedResponse)
	}
	return items, nil
}

// repair inserts the commas the model forgot between adjacent tokens.
func repair(fragment string) string {
	fragment = adjacentObjects.ReplaceAllString(fragment, "}, {")
	fragment = adjacentArrays.ReplaceAllString(fragment, "], [")
	fragment = adjacentStrings.ReplaceAllString(fragment, `", "`)
	return fragment
}

type frame struct {
	object    bool
	expectKey bool
}

// flatten walks the token stream so strings come out in document order;
// decoding into a map would shuffle object members.
func flatten(fragment string) ([]string, error) {
	dec := json.NewDecoder(strings.NewReader(fragment))
	dec.UseNumber()

	out := []string{}
	var stack []*frame

	top := func() *frame {
		if len(stack) == 0 {
			return nil
		}
		return stack[len(stack)-1]
	}

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		switch v := tok.(type) {
		case json.Delim:
			switch v {
			case '{':
				stack = append(stack, &frame{object: true, expectKey: true})
			case '[':
				stack = append(stack, &frame{})
			case '}', ']':
				stack = stack[:len(stack)-1]
				if parent := top(); parent != nil && parent.object {
					parent.expectKey = true
				}
			}
		case string:
			if current := top(); current != nil && current.object {
				if current.expectKey {
					current.expectKey = false
					continue
				}
				current.expectKey = true
			}
			out = append(out, v)
		default:
			// Numbers, booleans, nulls are not answers.
			if current := top(); current != nil && current.object {
				current.expectKey = true
			}
		}
	}
	return out, nil
}
