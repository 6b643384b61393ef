package sourced

import (
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Clock supplies the current time. Stores and repositories take a Clock
// instead of calling time.Now directly so tests can run deterministically.
type Clock interface {
	Now() time.Time
}

// IDGenerator supplies unique identifiers for stored events.
type IDGenerator interface {
	NewID() string
}

// SystemClock is the default wall-clock Clock.
var SystemClock Clock = systemClock{}

type systemClock struct{}

func (systemClock) Now() time.Time {
	return time.Now()
}

// UUIDGenerator is the default IDGenerator producing random UUIDs.
var UUIDGenerator IDGenerator = uuidGenerator{}

type uuidGenerator struct{}

func (uuidGenerator) NewID() string {
	return uuid.New().String()
}

// FixedClock is a Clock that returns a settable time. Intended for tests.
type FixedClock struct {
	mu sync.Mutex
	t  time.Time
}

// NewFixedClock creates a FixedClock starting at t.
func NewFixedClock(t time.Time) *FixedClock {
	return &FixedClock{t: t}
}

// Now returns the clock's current time.
func (c *FixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

// Set moves the clock to t.
func (c *FixedClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

// Advance moves the clock forward by d and returns the new time.
func (c *FixedClock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
	return c.t
}

// SequenceIDGenerator produces "prefix-1", "prefix-2", ... identifiers.
// Intended for tests.
type SequenceIDGenerator struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewSequenceIDGenerator creates a SequenceIDGenerator with the given prefix.
func NewSequenceIDGenerator(prefix string) *SequenceIDGenerator {
	return &SequenceIDGenerator{prefix: prefix}
}

// NewID returns the next identifier in the sequence.
func (g *SequenceIDGenerator) NewID() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return g.prefix + "-" + strconv.Itoa(g.n)
}
