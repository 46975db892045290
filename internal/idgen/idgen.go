// Package idgen provides time-sortable identifiers and the clock used
// for every timestamp the engine records.
//
// Identifiers are a short type prefix plus the 32 hex characters of a
// UUIDv7, so lexicographic order within a prefix follows creation
// order. The longest ID ("asrt_" + 32) is 37 bytes, well inside the
// 64-byte identifier columns.
package idgen

import (
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ID prefixes, one per vertex tag.
const (
	PrefixEntity        = "ent_"
	PrefixAssertion     = "asrt_"
	PrefixPropertyValue = "pv_"
	PrefixChangeEvent   = "ce_"
	PrefixImportRun     = "ir_"
	PrefixSource        = "src_"
)

// MaxIDLength is the fixed identifier column width in every driver.
const MaxIDLength = 64

// New returns a fresh identifier with the given prefix.
func New(prefix string) string {
	u := uuid.Must(uuid.NewV7())
	return prefix + hex.EncodeToString(u[:])
}

// Validate checks that id carries the expected prefix and a 32-char
// hex payload.
func Validate(id, prefix string) error {
	if !strings.HasPrefix(id, prefix) {
		return fmt.Errorf("id %q lacks prefix %q", id, prefix)
	}
	payload := id[len(prefix):]
	if len(payload) != 32 {
		return fmt.Errorf("id %q payload is %d chars, want 32", id, len(payload))
	}
	if _, err := hex.DecodeString(payload); err != nil {
		return fmt.Errorf("id %q payload is not hex: %w", id, err)
	}
	return nil
}

// Clock abstracts the source of time so runs are reproducible in tests.
// Implementations must return UTC.
type Clock interface {
	Now() time.Time
}

// WallClock reads the system clock.
type WallClock struct{}

// Now returns the current UTC time.
func (WallClock) Now() time.Time { return time.Now().UTC() }

// ManualClock is a settable clock for tests. Advance moves it forward;
// Now never changes on its own.
type ManualClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewManualClock starts a manual clock at t (converted to UTC).
func NewManualClock(t time.Time) *ManualClock {
	return &ManualClock{now: t.UTC()}
}

// Now returns the clock's current reading.
func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Set jumps the clock to t (converted to UTC).
func (c *ManualClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t.UTC()
}
