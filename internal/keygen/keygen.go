// Package keygen produces candidate short codes for new links.
package keygen

import (
	"crypto/rand"
	"io"
	"math/big"
	mrand "math/rand"
	"strings"
)

// Alphabet is the 62-symbol set the short codes are drawn from.
const Alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// DefaultLength is the number of symbols in a generated code.
// With the 62-symbol alphabet this gives a 62^10 identifier space,
// so collisions are resolved by retrying, not prevented.
const DefaultLength = 10

// Generator produces fixed-length uniformly random codes.
// It has no state and is safe for concurrent use.
type Generator struct {
	length int
	random io.Reader
}

// New returns a Generator producing codes of the given length.
// Non-positive lengths fall back to DefaultLength.
func New(length int) *Generator {
	if length <= 0 {
		length = DefaultLength
	}

	return &Generator{
		length: length,
		random: rand.Reader,
	}
}

// Generate returns a fresh candidate code. Each call draws independently,
// so callers may invoke it repeatedly until the store accepts the candidate.
// A failing entropy source degrades to math/rand instead of failing the
// call: the store's key constraint still guarantees uniqueness.
func (g *Generator) Generate() string {
	var result strings.Builder
	result.Grow(g.length)

	alphabetSize := big.NewInt(int64(len(Alphabet)))
	for i := 0; i < g.length; i++ {
		index, err := rand.Int(g.random, alphabetSize)
		if err != nil {
			result.WriteByte(Alphabet[mrand.Intn(len(Alphabet))])

			continue
		}

		result.WriteByte(Alphabet[index.Int64()])
	}

	return result.String()
}
