// Package identifier produces the random ids used for enrichment requests
// and merchant cache entries.
package identifier

import (
	"errors"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/fx"
)

// ErrInvalidFormat is returned when a candidate id is not a valid UUID.
var ErrInvalidFormat = errors.New("invalid_identifier_format")

func init() {
	// Pooled randomness amortizes the crypto/rand mutex so concurrent
	// generation does not serialize on a single lock.
	uuid.EnableRandPool()
}

// Generator produces collision-resistant random identifiers (UUID v4).
// Stateless and safe for concurrent use.
type Generator struct{}

func NewGenerator() *Generator {
	return &Generator{}
}

// Generate returns a new random id in canonical lowercase form.
func (g *Generator) Generate() string {
	return uuid.NewString()
}

// IsValid reports whether s parses as a UUID.
func (g *Generator) IsValid(s string) bool {
	if strings.TrimSpace(s) == "" {
		return false
	}
	_, err := uuid.Parse(s)
	return err == nil
}

// Normalize returns the canonical lowercase form of s.
func (g *Generator) Normalize(s string) (string, error) {
	parsed, err := uuid.Parse(s)
	if err != nil {
		return "", ErrInvalidFormat
	}
	return parsed.String(), nil
}

var Module = fx.Module("identifier",
	fx.Provide(NewGenerator),
)
