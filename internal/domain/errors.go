package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidTransition = errors.New("invalid status transition")

	// Backend adapter taxonomy. Adapters wrap one of these so the
	// orchestrator can tell a provider-reported failure from a timeout.
	ErrConfiguration    = errors.New("provider configuration error")
	ErrProviderRejected = errors.New("provider rejected request")
	ErrProviderFailed   = errors.New("provider reported failure")
	ErrTimeout          = errors.New("generation timed out")
	ErrTransport        = errors.New("transport error")

	// Extraction and materialization failures.
	ErrMalformedResponse = errors.New("malformed model response")
	ErrArtifactDownload  = errors.New("artifact download failed")
	ErrArtifactUpload    = errors.New("artifact upload failed")
)

// BatchCountMismatchError is returned when a text-generation backend never
// produced the requested number of answers within the retry budget.
type BatchCountMismatchError struct {
	Got  int
	Want int
}

func (e *BatchCountMismatchError) Error() string {
	return fmt.Sprintf("answer batch count mismatch: got %d answers, expected %d", e.Got, e.Want)
}
