package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestScheduler() (*Scheduler, *fakeClock) {
	clk := &fakeClock{now: time.Date(2024, 6, 1, 3, 0, 0, 0, time.UTC)}
	return New(DefaultConfig()).WithClock(clk.Now), clk
}

func TestScheduler_Add(t *testing.T) {
	s, _ := newTestScheduler()
	noop := func(context.Context) error { return nil }

	require.NoError(t, s.Add(Task{Name: "retention", Schedule: "30 3 * * *", Run: noop}))
	assert.Error(t, s.Add(Task{Name: "retention", Schedule: "* * * * *", Run: noop}))
	assert.Error(t, s.Add(Task{Name: "bad", Schedule: "not a cron", Run: noop}))
	require.NoError(t, s.Add(Task{Name: "disabled", Schedule: "", Run: noop}))

	status := s.Status()
	require.Len(t, status, 1)
	assert.Equal(t, time.Date(2024, 6, 1, 3, 30, 0, 0, time.UTC), status[0].NextRun)
}

func TestScheduler_TickDispatchesDueTasksOnce(t *testing.T) {
	s, clk := newTestScheduler()
	var runs atomic.Int32
	release := make(chan struct{})
	require.NoError(t, s.Add(Task{
		Name:     "sync",
		Schedule: "*/5 * * * *",
		Run: func(context.Context) error {
			runs.Add(1)
			<-release
			return nil
		},
	}))
	ctx := context.Background()

	s.tick(ctx)
	assert.Equal(t, int32(0), runs.Load(), "not due yet")

	clk.Advance(5 * time.Minute)
	s.tick(ctx)
	s.tick(ctx)
	assert.Eventually(t, func() bool { return runs.Load() == 1 }, time.Second, 5*time.Millisecond)

	// Due again while the first run is still active: skipped.
	clk.Advance(5 * time.Minute)
	s.tick(ctx)
	assert.Equal(t, int32(1), runs.Load())
	assert.ErrorIs(t, s.RunNow(ctx, "sync"), ErrTaskRunning)

	close(release)
	s.wg.Wait()

	clk.Advance(5 * time.Minute)
	s.tick(ctx)
	s.wg.Wait()
	assert.Equal(t, int32(2), runs.Load())
}

func TestScheduler_RunNowRecordsOutcome(t *testing.T) {
	s, _ := newTestScheduler()
	require.NoError(t, s.Add(Task{
		Name:     "retention",
		Schedule: "@daily",
		Run:      func(context.Context) error { return errors.New("database is locked") },
	}))

	assert.ErrorIs(t, s.RunNow(context.Background(), "nope"), ErrUnknownTask)
	require.NoError(t, s.RunNow(context.Background(), "retention"))
	s.wg.Wait()

	status := s.Status()
	require.Len(t, status, 1)
	assert.False(t, status[0].Running)
	assert.Equal(t, "database is locked", status[0].LastError)
	assert.False(t, status[0].LastRun.IsZero())
}

func TestScheduler_StartStop(t *testing.T) {
	s := New(Config{CheckInterval: 10 * time.Millisecond})
	var runs atomic.Int32
	require.NoError(t, s.Add(Task{
		Name:     "every-minute",
		Schedule: "* * * * *",
		Run:      func(context.Context) error { runs.Add(1); return nil },
	}))

	require.NoError(t, s.Start(context.Background()))
	assert.Error(t, s.Start(context.Background()))
	s.Stop()

	assert.NoError(t, s.ValidateCron("0 */6 * * *"))
	assert.Error(t, s.ValidateCron("61 * * * *"))
}
