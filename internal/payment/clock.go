package payment

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Timer is a pending delayed callback.
type Timer interface {
	Stop() bool
}

// Clock supplies timestamps and delayed callbacks to the engine.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// SystemClock is the wall clock.
type SystemClock struct{}

// Now returns the current time.
func (SystemClock) Now() time.Time { return time.Now() }

// AfterFunc runs f in its own goroutine after d.
func (SystemClock) AfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }

// IDSource mints opaque identifiers.
type IDSource interface {
	NewID(prefix string) string
}

// UUIDSource builds ids from random UUIDs, e.g. "pi_3f0c...".
type UUIDSource struct{}

// NewID returns prefix followed by a dash-less UUID.
func (UUIDSource) NewID(prefix string) string {
	return prefix + strings.ReplaceAll(uuid.NewString(), "-", "")
}

const (
	prefixIntent  = "pi_"
	prefixJob     = "job_"
	prefixPayment = "pay_"
	prefixRefund  = "re_"
	prefixSecret  = "secret_"
)
