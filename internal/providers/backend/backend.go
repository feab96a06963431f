package backend

import "context"

// GenerationRequest is the normalized per-call structure built from a job.
// Model carries the provider-specific model path, already resolved from the
// short name stored on the job.
type GenerationRequest struct {
	JobID       string
	Model       string
	Prompt      string
	Width       int
	Height      int
	Strength    float64
	Guidance    float64
	InputImages []string
}

// Adapter is the contract implemented by every generation backend. Generate
// is a pure request-to-result function: it performs its own network I/O but
// never touches the job store or any other caller state. Errors wrap the
// domain taxonomy so callers can branch on failure class.
type Adapter interface {
	Generate(ctx context.Context, req GenerationRequest) (string, error)
}
