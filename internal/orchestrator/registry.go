package orchestrator

import "renderworker/internal/providers/backend"

// Capability binds a job-facing model name to the adapter that serves it and
// the provider-specific model path to call it with. Jobs referencing models
// outside the registry are never fetched, which is how several specialized
// workers can share one job table.
type Capability struct {
	Adapter       backend.Adapter
	ProviderModel string
}

// Registry maps job model identifiers to capabilities.
type Registry map[string]Capability

// Models returns the job model identifiers this worker claims.
func (r Registry) Models() []string {
	models := make([]string, 0, len(r))
	for model := range r {
		models = append(models, model)
	}
	return models
}

// FalModelAliases maps the short model names stored on jobs to full fal
// model paths.
var FalModelAliases = map[string]string{
	"schnell":        "flux-1/schnell",
	"dev":            "flux-1/dev",
	"minimax":        "minimax/image-01",
	"minimax-expand": "minimax/image-01",
	"imagen3":        "imagen4/preview/ultra",
	"aura-flow":      "aura-flow",
	"ideogram-v2a":   "ideogram/v2a",
	"luma-photon":    "luma-photon",
	"recraft-20b":    "recraft-20b",
	"qwen-image":     "qwen-image",
}
