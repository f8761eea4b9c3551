// Package backoff implements the bounded-spin / sleep / yield contention
// policy used by the head-CAS retry loop of chm.Map.Emplace and the
// record-stack publish loop in mount.
package backoff

import (
	"runtime"
	"time"
)

// Default tuning matches storageconf.Config.Backoff's zero-value defaults.
const (
	DefaultSpinLimit     = 32
	DefaultSleepDuration = time.Nanosecond
)

// Backoff tracks retry escalation across a single contended operation. It is
// not safe for concurrent use by multiple goroutines; each retry loop owns
// its own value.
type Backoff struct {
	spinLimit     int
	sleepDuration time.Duration
	attempts      int
}

// New returns a Backoff with the given spin limit and post-spin sleep
// duration. A spinLimit <= 0 disables the spin phase.
func New(spinLimit int, sleepDuration time.Duration) *Backoff {
	return &Backoff{spinLimit: spinLimit, sleepDuration: sleepDuration}
}

// Default returns a Backoff configured with the package defaults.
func Default() *Backoff {
	return New(DefaultSpinLimit, DefaultSleepDuration)
}

// Wait advances the escalation policy by one step: a bounded busy spin,
// then a single short sleep, then cooperative scheduling yields thereafter.
func (b *Backoff) Wait() {
	b.attempts++
	switch {
	case b.attempts <= b.spinLimit:
		for i := 0; i < b.attempts; i++ {
			procyield()
		}
	case b.attempts == b.spinLimit+1:
		time.Sleep(b.sleepDuration)
	default:
		runtime.Gosched()
	}
}

// Reset clears escalation state so the same Backoff can be reused for a new
// retry loop.
func (b *Backoff) Reset() {
	b.attempts = 0
}

// procyield performs one cheap spin-wait iteration. runtime.Gosched is used
// in place of a CPU PAUSE instruction, since Go exposes no portable spin
// intrinsic; it still avoids an OS-level sleep during the early, cheap
// retries.
func procyield() {
	runtime.Gosched()
}
