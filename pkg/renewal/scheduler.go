// Package renewal keeps one pending renewal timer per key.
//
// Keys name the resource being renewed: "auth" for the client credential
// and "secret:<address>" for a watched secret. Arming a key replaces its
// previous timer, and a timer that has been replaced or cancelled never
// runs its action, even when it fired concurrently with the replacement.
package renewal

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/juju/clock"
	"github.com/systmms/vaultlease/internal/metrics"
)

// AuthKey is the key for the client credential.
const AuthKey = "auth"

// handle is one armed timer. gen identifies it among all timers the
// scheduler has ever armed.
type handle struct {
	gen   uint64
	timer clock.Timer
}

// Scheduler is a keyed table of one-shot timers.
type Scheduler struct {
	mu      sync.Mutex
	clock   clock.Clock
	metrics *metrics.Recorder
	timers  map[string]*handle
	gen     uint64
	stopped bool
}

// New creates a scheduler on clk. A nil clock uses the wall clock.
func New(clk clock.Clock) *Scheduler {
	if clk == nil {
		clk = clock.WallClock
	}
	return &Scheduler{
		clock:   clk,
		metrics: metrics.NewRecorder(),
		timers:  make(map[string]*handle),
	}
}

// Arm schedules action to run once after delaySeconds. Any timer already
// armed for key is cancelled first. A non-positive delay only cancels.
// Arm reports whether a timer was armed.
func (s *Scheduler) Arm(key string, delaySeconds int, action func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cancelLocked(key)
	if s.stopped || delaySeconds <= 0 {
		s.report()
		return false
	}

	s.gen++
	gen := s.gen
	h := &handle{gen: gen}
	h.timer = s.clock.AfterFunc(time.Duration(delaySeconds)*time.Second, func() {
		if !s.claim(key, gen) {
			return
		}
		s.metrics.RecordRenewalFired(Kind(key))
		action()
	})
	s.timers[key] = h
	s.report()
	return true
}

// claim removes the handle for key if it is still generation gen.
func (s *Scheduler) claim(key string, gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	h, ok := s.timers[key]
	if !ok || h.gen != gen {
		return false
	}
	delete(s.timers, key)
	s.report()
	return true
}

// Cancel stops the timer for key. It reports whether one was armed.
func (s *Scheduler) Cancel(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	ok := s.cancelLocked(key)
	s.report()
	return ok
}

func (s *Scheduler) cancelLocked(key string) bool {
	h, ok := s.timers[key]
	if !ok {
		return false
	}
	h.timer.Stop()
	delete(s.timers, key)
	return true
}

// CancelAll stops every armed timer. The scheduler stays usable.
func (s *Scheduler) CancelAll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key := range s.timers {
		s.cancelLocked(key)
	}
	s.report()
}

// Stop cancels every timer and makes later Arm calls no-ops.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()

	s.CancelAll()
}

// Pending returns the armed keys in sorted order.
func (s *Scheduler) Pending() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := make([]string, 0, len(s.timers))
	for key := range s.timers {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Len returns the number of armed timers.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

func (s *Scheduler) report() {
	s.metrics.SetRenewalsArmed(len(s.timers))
}

// Kind returns the resource kind of a key: "auth" or "secret".
func Kind(key string) string {
	if i := strings.IndexByte(key, ':'); i >= 0 {
		return key[:i]
	}
	return key
}

// SecretKey returns the key for the secret stored at address.
func SecretKey(address string) string {
	return "secret:" + address
}
