package renewal_test

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/juju/clock/testclock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/systmms/vaultlease/pkg/renewal"
)

const (
	shortWait = 50 * time.Millisecond
	longWait  = 5 * time.Second
)

func newScheduler() (*renewal.Scheduler, *testclock.Clock) {
	clk := testclock.NewClock(time.Now())
	return renewal.New(clk), clk
}

func expectFired(t *testing.T, ch <-chan string, want string) {
	t.Helper()
	select {
	case got := <-ch:
		assert.Equal(t, want, got)
	case <-time.After(longWait):
		t.Fatalf("%s did not fire", want)
	}
}

func expectQuiet(t *testing.T, ch <-chan string) {
	t.Helper()
	select {
	case got := <-ch:
		t.Fatalf("unexpected fire of %s", got)
	case <-time.After(shortWait):
	}
}

func TestArmFiresAfterDelay(t *testing.T) {
	t.Parallel()

	s, clk := newScheduler()
	fired := make(chan string, 1)

	require.True(t, s.Arm(renewal.AuthKey, 10, func() { fired <- "auth" }))
	assert.Equal(t, []string{"auth"}, s.Pending())

	require.NoError(t, clk.WaitAdvance(9*time.Second, longWait, 1))
	expectQuiet(t, fired)

	clk.Advance(time.Second)
	expectFired(t, fired, "auth")
	assert.Eventually(t, func() bool { return s.Len() == 0 }, longWait, time.Millisecond)
}

func TestArmNonPositiveDelayArmsNothing(t *testing.T) {
	t.Parallel()

	s, _ := newScheduler()

	assert.False(t, s.Arm("secret:db", 0, func() { t.Error("must not fire") }))
	assert.False(t, s.Arm("secret:db", -5, func() { t.Error("must not fire") }))
	assert.Equal(t, 0, s.Len())
}

func TestArmZeroCancelsPrevious(t *testing.T) {
	t.Parallel()

	s, clk := newScheduler()
	fired := make(chan string, 1)

	s.Arm("secret:db", 5, func() { fired <- "old" })
	s.Arm("secret:db", 0, func() {})
	assert.Equal(t, 0, s.Len())

	clk.Advance(time.Minute)
	expectQuiet(t, fired)
}

func TestRearmReplacesHandle(t *testing.T) {
	t.Parallel()

	s, clk := newScheduler()
	fired := make(chan string, 2)

	s.Arm("secret:db", 5, func() { fired <- "first" })
	s.Arm("secret:db", 8, func() { fired <- "second" })
	assert.Equal(t, 1, s.Len())

	require.NoError(t, clk.WaitAdvance(5*time.Second, longWait, 1))
	expectQuiet(t, fired)

	clk.Advance(3 * time.Second)
	expectFired(t, fired, "second")
	expectQuiet(t, fired)
}

func TestCancel(t *testing.T) {
	t.Parallel()

	s, clk := newScheduler()
	fired := make(chan string, 1)

	s.Arm(renewal.AuthKey, 1, func() { fired <- "auth" })
	assert.True(t, s.Cancel(renewal.AuthKey))
	assert.False(t, s.Cancel(renewal.AuthKey))

	clk.Advance(time.Hour)
	expectQuiet(t, fired)
}

func TestIndependentKeys(t *testing.T) {
	t.Parallel()

	s, clk := newScheduler()
	fired := make(chan string, 4)

	s.Arm(renewal.SecretKey("a"), 2, func() { fired <- "a" })
	s.Arm(renewal.SecretKey("b"), 4, func() { fired <- "b" })
	assert.Equal(t, []string{"secret:a", "secret:b"}, s.Pending())

	require.NoError(t, clk.WaitAdvance(2*time.Second, longWait, 2))
	expectFired(t, fired, "a")
	expectQuiet(t, fired)

	clk.Advance(2 * time.Second)
	expectFired(t, fired, "b")
}

func TestCancelAllLeavesNoTimers(t *testing.T) {
	t.Parallel()

	s, clk := newScheduler()
	var fired int32

	s.Arm(renewal.AuthKey, 1, func() { atomic.AddInt32(&fired, 1) })
	s.Arm(renewal.SecretKey("a"), 1, func() { atomic.AddInt32(&fired, 1) })
	s.Arm(renewal.SecretKey("b"), 2, func() { atomic.AddInt32(&fired, 1) })

	s.CancelAll()
	assert.Equal(t, 0, s.Len())
	assert.Empty(t, s.Pending())

	clk.Advance(time.Hour)
	time.Sleep(shortWait)
	assert.Equal(t, int32(0), atomic.LoadInt32(&fired))

	// still usable after a logout
	assert.True(t, s.Arm(renewal.AuthKey, 1, func() {}))
}

func TestStopRejectsArm(t *testing.T) {
	t.Parallel()

	s, _ := newScheduler()
	s.Arm(renewal.AuthKey, 1, func() {})

	s.Stop()
	assert.Equal(t, 0, s.Len())
	assert.False(t, s.Arm(renewal.AuthKey, 1, func() {}))
	assert.Equal(t, 0, s.Len())
}

func TestActionMayRearmItself(t *testing.T) {
	t.Parallel()

	s, clk := newScheduler()
	fired := make(chan string, 4)

	var renew func()
	renew = func() {
		fired <- "tick"
		s.Arm(renewal.AuthKey, 3, renew)
	}
	s.Arm(renewal.AuthKey, 3, renew)

	for i := 0; i < 3; i++ {
		require.NoError(t, clk.WaitAdvance(3*time.Second, longWait, 1))
		expectFired(t, fired, "tick")
	}
}

func TestKind(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "auth", renewal.Kind(renewal.AuthKey))
	assert.Equal(t, "secret", renewal.Kind(renewal.SecretKey("db.primary")))
	assert.Equal(t, "secret:.", renewal.SecretKey("."))
}
