// Package shortcode generates and validates the compact identifiers used as short link keys.
package shortcode

import (
	"errors"
	"fmt"
	"regexp"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

const (
	// Alphabet is the 62-character URL-safe alphabet generated codes are drawn from.
	Alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	// DefaultLength gives a keyspace of 62^8, about 2.18e14 codes.
	DefaultLength = 8

	MinCustomLength = 3
	MaxCustomLength = 20
)

var (
	// ErrInvalidFormat is returned when a custom code is too short, too long or has a character outside [A-Za-z0-9_-].
	ErrInvalidFormat = errors.New("short code must be 3-20 characters of letters, digits, '_' or '-'")

	customCodeRe = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)
)

// Generator draws fixed-length codes from a cryptographically strong source.
// It keeps no state between calls and is safe for concurrent use.
// It never checks uniqueness: that is the job of the store's conditional write.
type Generator struct {
	alphabet string
	length   int
}

type Option func(*Generator)

// WithAlphabet overrides the alphabet. Small alphabets are useful to force collisions in tests.
func WithAlphabet(alphabet string) Option {
	return func(g *Generator) {
		g.alphabet = alphabet
	}
}

func NewGenerator(length int, opts ...Option) *Generator {
	g := &Generator{
		alphabet: Alphabet,
		length:   length,
	}

	for _, opt := range opts {
		opt(g)
	}

	return g
}

func (g *Generator) Length() int {
	return g.length
}

func (g *Generator) Generate() (string, error) {
	const op = "shortcode.Generator.Generate"

	code, err := gonanoid.Generate(g.alphabet, g.length)
	if err != nil {
		return "", fmt.Errorf("%s: failed to generate code: %w", op, err)
	}

	return code, nil
}

// ValidateCustom checks a caller-supplied code against the custom code format.
func ValidateCustom(code string) error {
	if len(code) < MinCustomLength || len(code) > MaxCustomLength {
		return ErrInvalidFormat
	}
	if !customCodeRe.MatchString(code) {
		return ErrInvalidFormat
	}
	return nil
}
