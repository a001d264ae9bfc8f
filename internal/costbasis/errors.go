package costbasis

import "errors"

// Validation errors. Callers match them with errors.Is; the returned errors
// carry the offending values as context.
var (
	ErrInvalidQuantity = errors.New("invalid quantity")
	ErrInvalidPrice    = errors.New("invalid price")
	ErrMissingPrice    = errors.New("missing price")
	ErrOversell        = errors.New("sell exceeds held quantity")
)
