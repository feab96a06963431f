package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"renderworker/internal/domain"
	"renderworker/internal/infra"
	"renderworker/internal/promptgen"
)

// StatsStore is the slice of the job repository the ops surface needs.
type StatsStore interface {
	CountByStatus(ctx context.Context) (map[domain.Status]int64, error)
}

// PromptExpander is implemented by promptgen.Service.
type PromptExpander interface {
	Generate(ctx context.Context, template string, count int, precision promptgen.Precision, originalPrompt string) ([]string, error)
}

type Handler struct {
	stats    StatsStore
	expander PromptExpander
	logger   infra.Logger
}

func NewHandler(stats StatsStore, expander PromptExpander, logger infra.Logger) *Handler {
	return &Handler{stats: stats, expander: expander, logger: logger}
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	counts, err := h.stats.CountByStatus(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("httpapi: stats query failed")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "stats unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": counts})
}

type expandRequest struct {
	Template  string `json:"template"`
	Count     int    `json:"count"`
	Precision string `json:"precision"`
	Prompt    string `json:"prompt"`
}

type expandResponse struct {
	Answers []string `json:"answers"`
}

// ExpandPrompts runs the multi-answer generation state machine for an
// interactive caller.
func (h *Handler) ExpandPrompts(w http.ResponseWriter, r *http.Request) {
	var req expandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json body"})
		return
	}
	if req.Template == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "template is required"})
		return
	}
	if req.Count < 1 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "count must be at least 1"})
		return
	}
	if h.expander == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "text generation backend not configured"})
		return
	}

	answers, err := h.expander.Generate(r.Context(), req.Template, req.Count, promptgen.Precision(req.Precision), req.Prompt)
	if err != nil {
		var mismatch *domain.BatchCountMismatchError
		if errors.As(err, &mismatch) {
			writeJSON(w, http.StatusBadGateway, map[string]any{
				"error":    "answer batch count mismatch",
				"got":      mismatch.Got,
				"expected": mismatch.Want,
			})
			return
		}
		h.logger.Error().Err(err).Msg("httpapi: prompt expansion failed")
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": "prompt expansion failed"})
		return
	}
	writeJSON(w, http.StatusOK, expandResponse{Answers: answers})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
