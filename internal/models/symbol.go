package models

import (
	"fmt"
	"strings"
)

// MaxSymbolLength is the longest ticker accepted
const MaxSymbolLength = 10

// NormalizeSymbol trims and upper-cases a ticker and checks it is 1-10
// ASCII letters or digits.
func NormalizeSymbol(symbol string) (string, error) {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	if s == "" {
		return "", fmt.Errorf("%w: symbol is required", ErrInvalidSymbol)
	}
	if len(s) > MaxSymbolLength {
		return "", fmt.Errorf("%w: %q is longer than %d characters", ErrInvalidSymbol, s, MaxSymbolLength)
	}
	for _, r := range s {
		if (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
			return "", fmt.Errorf("%w: %q must be alphanumeric", ErrInvalidSymbol, s)
		}
	}
	return s, nil
}
