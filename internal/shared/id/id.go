// Package id provides centralized ID generation for the daemon.
//
// IDs are ULIDs with type-specific prefixes (sess_*, req_*, dev_*):
// lexicographically sortable, debuggable in logs, and unique without
// coordination. Separate Go types keep a session ID from ever being
// passed where a request ID belongs.
package id

import (
	"crypto/rand"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// SessionID identifies a terminal session.
type SessionID string

// RequestID identifies an API request.
type RequestID string

// DeviceID identifies this daemon toward the backend control plane.
type DeviceID string

// Prefixes used for type identification in logs.
const (
	SessionPrefix = "sess"
	RequestPrefix = "req"
	DevicePrefix  = "dev"
)

// Generator generates ULIDs with optional prefixes.
type Generator struct {
	entropy   io.Reader
	entropyMu sync.Mutex // the entropy reader is not safe for concurrent use
}

var (
	defaultGenerator *Generator
	once             sync.Once
)

// Default returns the singleton generator instance.
func Default() *Generator {
	once.Do(func() {
		defaultGenerator = NewGenerator()
	})
	return defaultGenerator
}

// NewGenerator creates a ULID generator backed by crypto/rand.
func NewGenerator() *Generator {
	return &Generator{entropy: rand.Reader}
}

// NewGeneratorWithEntropy creates a generator with a custom entropy source.
// Useful for deterministic tests.
func NewGeneratorWithEntropy(entropy io.Reader) *Generator {
	return &Generator{entropy: entropy}
}

// Generate creates a new ULID.
func (g *Generator) Generate() ulid.ULID {
	g.entropyMu.Lock()
	defer g.entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), g.entropy)
}

// GenerateString creates a new ULID as a string.
func (g *Generator) GenerateString() string {
	return g.Generate().String()
}

// GenerateWithPrefix creates a prefixed ULID string.
func (g *Generator) GenerateWithPrefix(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, g.GenerateString())
}

// NewSessionID generates a new terminal session ID.
func NewSessionID() SessionID {
	return SessionID(Default().GenerateWithPrefix(SessionPrefix))
}

// NewRequestID generates a new API request ID.
func NewRequestID() RequestID {
	return RequestID(Default().GenerateWithPrefix(RequestPrefix))
}

// NewDeviceID generates a new device ID.
func NewDeviceID() DeviceID {
	return DeviceID(Default().GenerateWithPrefix(DevicePrefix))
}

func (id SessionID) String() string { return string(id) }
func (id RequestID) String() string { return string(id) }
func (id DeviceID) String() string  { return string(id) }

// IsValid checks if an ID string is a valid ULID.
func IsValid(id string) bool {
	_, err := ulid.Parse(id)
	return err == nil
}

// Parse parses a ULID string.
func Parse(id string) (ulid.ULID, error) {
	return ulid.Parse(id)
}

// Timestamp extracts the embedded timestamp from a ULID.
func Timestamp(id string) (time.Time, error) {
	parsed, err := Parse(id)
	if err != nil {
		return time.Time{}, err
	}
	return ulid.Time(parsed.Time()), nil
}
