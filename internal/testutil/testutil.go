// Package testutil provides deterministic stand-ins for the engine's
// clock and uid generator.
package testutil

import (
	"fmt"
	"sync"
	"time"
)

// FixedClock reports a constant time until advanced.
type FixedClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewFixedClock creates a clock frozen at t.
func NewFixedClock(t time.Time) *FixedClock {
	return &FixedClock{now: t}
}

// Now returns the frozen time.
func (c *FixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *FixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// FixedGenerator hands out a preset list of tokens in order and panics
// when exhausted, so a test appending more events than it scripted fails
// loudly.
type FixedGenerator struct {
	mu     sync.Mutex
	tokens []string
	next   int
}

// NewFixedGenerator creates a generator over the given tokens.
func NewFixedGenerator(tokens ...string) *FixedGenerator {
	return &FixedGenerator{tokens: tokens}
}

// Generate returns the next preset token.
func (g *FixedGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.next >= len(g.tokens) {
		panic(fmt.Sprintf("fixed generator exhausted after %d tokens", len(g.tokens)))
	}
	token := g.tokens[g.next]
	g.next++
	return token
}

// SequenceGenerator produces prefix-0, prefix-1, ... without bound.
type SequenceGenerator struct {
	mu     sync.Mutex
	prefix string
	next   int
}

// NewSequenceGenerator creates a generator with the given prefix.
func NewSequenceGenerator(prefix string) *SequenceGenerator {
	return &SequenceGenerator{prefix: prefix}
}

// Generate returns the next token in the sequence.
func (g *SequenceGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	token := fmt.Sprintf("%s-%d", g.prefix, g.next)
	g.next++
	return token
}
