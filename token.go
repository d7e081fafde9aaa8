package statecell

import (
	"strconv"
	"sync"

	"github.com/google/uuid"
)

// TokenGenerator issues write tokens: opaque identifiers stamped on
// every write operation and carried through the store's log output so a
// warning can be correlated with the write that produced it.
type TokenGenerator interface {
	Generate() string
}

// UUIDv7Generator issues UUIDv7 tokens. Time-ordered, so sorting tokens
// lexically roughly follows write order. This is the default.
type UUIDv7Generator struct{}

// Generate returns a new UUIDv7 string.
func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// FixedTokenGenerator returns tokens from a fixed list, cycling when the
// list is exhausted. Deterministic output for tests and replay.
type FixedTokenGenerator struct {
	mu     sync.Mutex
	tokens []string
	next   int
}

// NewFixedTokenGenerator creates a generator over the given tokens. With
// no tokens it yields "token-0", "token-1", and so on.
func NewFixedTokenGenerator(tokens ...string) *FixedTokenGenerator {
	return &FixedTokenGenerator{tokens: tokens}
}

// Generate returns the next token in sequence.
func (g *FixedTokenGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	if len(g.tokens) == 0 {
		token := "token-" + strconv.Itoa(g.next)
		g.next++
		return token
	}
	token := g.tokens[g.next%len(g.tokens)]
	g.next++
	return token
}
