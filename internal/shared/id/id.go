// Package id provides identifier generation for trace units and agent connections.
//
// Identifiers come in two families:
//   - Wire identifiers: Request and Span IDs sent to the agent. They are a fixed
//     literal prefix followed by a random UUID ("req-<uuid>", "span-<uuid>"),
//     so they are globally unique without coordination and easy to tell apart
//     in agent logs.
//   - Local identifiers: connection IDs used only in logs and metrics. They are
//     prefixed ULIDs, which sort by creation time.
package id

import (
	"crypto/rand"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// RequestID identifies a traced request on the wire
type RequestID string

// SpanID identifies a span on the wire
type SpanID string

// ConnID identifies one pooled agent connection
type ConnID string

const (
	RequestPrefix = "req-"
	SpanPrefix    = "span-"
	ConnPrefix    = "conn_"
)

// NewRequestID generates a new request ID
func NewRequestID() RequestID {
	return RequestID(RequestPrefix + uuid.NewString())
}

// NewSpanID generates a new span ID
func NewSpanID() SpanID {
	return SpanID(SpanPrefix + uuid.NewString())
}

// NewConnID generates a new connection ID
func NewConnID() ConnID {
	return ConnID(Default().GenerateWithPrefix(ConnPrefix))
}

func (id RequestID) String() string { return string(id) }
func (id SpanID) String() string    { return string(id) }
func (id ConnID) String() string    { return string(id) }

// IsRequestID reports whether s has the request prefix followed by a valid UUID
func IsRequestID(s string) bool {
	return hasUUIDSuffix(s, RequestPrefix)
}

// IsSpanID reports whether s has the span prefix followed by a valid UUID
func IsSpanID(s string) bool {
	return hasUUIDSuffix(s, SpanPrefix)
}

func hasUUIDSuffix(s, prefix string) bool {
	rest, ok := strings.CutPrefix(s, prefix)
	if !ok {
		return false
	}
	_, err := uuid.Parse(rest)
	return err == nil
}

// Generator generates ULIDs with optional prefixes
type Generator struct {
	entropy   io.Reader
	entropyMu sync.Mutex
}

var (
	defaultGenerator *Generator
	once             sync.Once
)

// Default returns the singleton generator instance
func Default() *Generator {
	once.Do(func() {
		defaultGenerator = NewGenerator()
	})
	return defaultGenerator
}

// NewGenerator creates a ULID generator backed by crypto/rand
func NewGenerator() *Generator {
	return &Generator{
		entropy: ulid.Monotonic(rand.Reader, 0),
	}
}

// NewGeneratorWithEntropy creates a generator with a custom entropy source.
// Useful for deterministic tests.
func NewGeneratorWithEntropy(entropy io.Reader) *Generator {
	return &Generator{entropy: entropy}
}

// Generate creates a new ULID
func (g *Generator) Generate() ulid.ULID {
	g.entropyMu.Lock()
	defer g.entropyMu.Unlock()

	return ulid.MustNew(ulid.Timestamp(time.Now()), g.entropy)
}

// GenerateWithPrefix creates a prefixed ULID string
func (g *Generator) GenerateWithPrefix(prefix string) string {
	return fmt.Sprintf("%s%s", prefix, g.Generate().String())
}

// ConnTimestamp extracts the creation time embedded in a connection ID
func ConnTimestamp(id ConnID) (time.Time, error) {
	raw, ok := strings.CutPrefix(string(id), ConnPrefix)
	if !ok {
		return time.Time{}, fmt.Errorf("not a connection id: %q", id)
	}
	parsed, err := ulid.Parse(raw)
	if err != nil {
		return time.Time{}, err
	}
	return ulid.Time(parsed.Time()), nil
}
