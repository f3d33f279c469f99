package agentkit

import (
	"errors"
	"fmt"
)

// Sentinel errors for model resolution.
var (
	// ErrNoProvider is returned when a provider is not registered.
	ErrNoProvider = errors.New("provider not registered")

	// ErrInvalidModel is returned for malformed model strings.
	ErrInvalidModel = errors.New("invalid model format (expected provider/model)")

	// ErrNoModel is returned when no model is specified and no default is set.
	ErrNoModel = errors.New("no model specified")

	// ErrNoEmbeddings is returned when a provider does not serve embeddings.
	ErrNoEmbeddings = errors.New("provider does not support embeddings")
)

// ModelError provides detailed information about model resolution failures.
type ModelError struct {
	Model     string   // The model string that failed to resolve
	Err       error    // The underlying error
	Available []string // Available providers (if applicable)
}

func (e *ModelError) Error() string {
	if len(e.Available) > 0 {
		return fmt.Sprintf("model %q: %v (available providers: %v)", e.Model, e.Err, e.Available)
	}
	return fmt.Sprintf("model %q: %v", e.Model, e.Err)
}

func (e *ModelError) Unwrap() error {
	return e.Err
}
