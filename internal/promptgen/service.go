// Package promptgen obtains an exact-size batch of answers from a text
// generation backend that is asked to, but does not reliably, honor the
// requested count. Wrong-sized batches are retried with progressively lower
// sampling temperature, biasing later attempts toward literal output.
package promptgen

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"renderworker/internal/domain"
	"renderworker/internal/extract"
	"renderworker/internal/infra"
	"renderworker/internal/providers/openai"
)

// Precision is the user-facing creativity setting.
type Precision string

const (
	PrecisionSpecific      Precision = "Specific"
	PrecisionNormal        Precision = "Normal"
	PrecisionDreamy        Precision = "Dreamy"
	PrecisionHallucinating Precision = "Hallucinating"
)

func temperatureFor(precision Precision) float64 {
	switch precision {
	case PrecisionSpecific:
		return 0.5
	case PrecisionDreamy:
		return 1.25
	case PrecisionHallucinating:
		return 1.5
	default:
		return 1.0
	}
}

const (
	maxRetries       = 4
	temperatureStep  = 0.3
	temperatureFloor = 0.5
	answerMaxTokens  = 1024
)

// Completer is the text-generation backend port.
type Completer interface {
	Complete(ctx context.Context, messages []openai.Message, sampling openai.Sampling) (string, error)
}

// Service drives the retry/backoff state machine per request.
type Service struct {
	completer Completer
	logger    infra.Logger
}

func NewService(completer Completer, logger infra.Logger) *Service {
	return &Service{completer: completer, logger: logger}
}

// Generate expands a template into answer strings. Multi-segment templates
// ("::"-delimited) run one retry loop per segment and combine the per-segment
// batches; plain templates run a single loop for the requested count.
func (s *Service) Generate(ctx context.Context, template string, count int, precision Precision, originalPrompt string) ([]string, error) {
	if count < 1 {
		return nil, errors.New("promptgen: count must be at least 1")
	}
	temperature := temperatureFor(precision)

	if strings.Contains(template, "::") {
		return s.generateSegments(ctx, template, count, temperature, originalPrompt)
	}

	prompt := substitutePrompt(normalizeText(template), originalPrompt)
	return s.queryWithRetries(ctx, prompt, count, temperature)
}

func (s *Service) generateSegments(ctx context.Context, template string, count int, temperature float64, originalPrompt string) ([]string, error) {
	segments, explode := parseSegments(template, count)

	var results []string
	for _, seg := range segments {
		prompt := substitutePrompt(seg.template, originalPrompt)
		answers, err := s.queryWithRetries(ctx, prompt, seg.count, temperature)
		if err != nil {
			return nil, err
		}
		switch {
		case results == nil:
			results = answers
		case explode:
			results = crossJoin(results, answers)
		default:
			results = positionalJoin(results, answers)
		}
	}
	return results, nil
}

// queryWithRetries asks for exactly count answers, up to maxRetries times.
// The final attempt restates the count requirement; every failed attempt
// lowers the temperature by a fixed step, floored at the minimum.
func (s *Service) queryWithRetries(ctx context.Context, prompt string, count int, temperature float64) ([]string, error) {
	lastCount := 0
	for attempt := 1; attempt <= maxRetries; attempt++ {
		lastAttempt := attempt == maxRetries
		messages := buildMessages(prompt, count, lastAttempt)

		raw, err := s.completer.Complete(ctx, messages, openai.Sampling{
			Temperature: temperature,
			MaxTokens:   answerMaxTokens,
		})
		if err != nil {
			if lastAttempt {
				return nil, fmt.Errorf("promptgen: completion failed: %w", err)
			}
			s.logger.Warn().Err(err).Int("attempt", attempt).Msg("promptgen: completion failed, retrying")
			temperature = math.Max(temperatureFloor, temperature-temperatureStep)
			continue
		}

		answers, err := extract.Batch(raw)
		if err != nil {
			s.logger.Warn().Err(err).Int("attempt", attempt).Msg("promptgen: response extraction failed")
			temperature = math.Max(temperatureFloor, temperature-temperatureStep)
			continue
		}
		if len(answers) == count {
			return answers, nil
		}

		lastCount = len(answers)
		s.logger.Warn().
			Int("attempt", attempt).
			Int("got", lastCount).
			Int("want", count).
			Msg("promptgen: answer count mismatch")
		temperature = math.Max(temperatureFloor, temperature-temperatureStep)
	}
	return nil, &domain.BatchCountMismatchError{Got: lastCount, Want: count}
}

func buildMessages(prompt string, count int, lastAttempt bool) []openai.Message {
	user := fmt.Sprintf(
		"I want you to act as a prompt generator. Compose each answer as a visual sentence. "+
			"Do not write explanations on replies. Format the answers as javascript json arrays with a "+
			"single string per answer. Return exactly %d to my question. Answer the questions exactly. "+
			"Answer the following question:\n%s", count, prompt)
	if lastAttempt {
		user += fmt.Sprintf("\nReturn exactly %d answers to my question.", count)
	}
	return []openai.Message{
		{
			Role:    "system",
			Content: fmt.Sprintf("Act like you are a terminal and always format your response as json. Always return exactly %d answers per question.", count),
		},
		{Role: "user", Content: user},
	}
}
