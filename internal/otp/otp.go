// Package otp generates and compares the six digit one-time codes used by
// two-factor verification and officer invitations.
package otp

import (
	"crypto/subtle"
	"fmt"
	"math/rand/v2"
	"sync"
)

// Length is the number of decimal digits in a code.
const Length = 6

// Generator produces one-time codes.
type Generator interface {
	Generate() string
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func() string

func (f GeneratorFunc) Generate() string { return f() }

// Random draws codes uniformly from 000000-999999. Not cryptographic.
var Random Generator = GeneratorFunc(NewCode)

// NewCode returns a zero padded code drawn uniformly over the full range.
func NewCode() string {
	return fmt.Sprintf("%06d", rand.IntN(1_000_000))
}

// Sequence returns a Generator yielding codes in order and then repeating
// the last one. Intended for tests.
func Sequence(codes ...string) Generator {
	var mu sync.Mutex
	i := 0
	return GeneratorFunc(func() string {
		mu.Lock()
		defer mu.Unlock()
		if len(codes) == 0 {
			return NewCode()
		}
		c := codes[min(i, len(codes)-1)]
		i++
		return c
	})
}

// Match reports whether supplied equals stored exactly. An empty stored
// code never matches.
func Match(stored, supplied string) bool {
	if stored == "" || len(stored) != len(supplied) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(stored), []byte(supplied)) == 1
}

// WellFormed reports whether code is exactly Length decimal digits.
func WellFormed(code string) bool {
	if len(code) != Length {
		return false
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// OrRandom returns g, or Random when g is nil.
func OrRandom(g Generator) Generator {
	if g == nil {
		return Random
	}
	return g
}
