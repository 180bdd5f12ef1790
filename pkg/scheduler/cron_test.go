package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCronRunsAndRecovers(t *testing.T) {
	cr := NewCron(time.UTC)
	var runs, panics atomic.Int32

	_, err := cr.Add("count", "@every 1s", FuncJob(func(ctx context.Context) { runs.Add(1) }))
	require.NoError(t, err)
	_, err = cr.Add("boom", "@every 1s", FuncJob(func(ctx context.Context) {
		panics.Add(1)
		panic("boom")
	}))
	require.NoError(t, err)
	assert.Len(t, cr.Entries(), 2)

	cr.Start()
	require.Eventually(t, func() bool { return runs.Load() >= 1 && panics.Load() >= 1 }, 3*time.Second, 20*time.Millisecond)
	cr.Stop()
}

func TestCronStopCancelsRunningJob(t *testing.T) {
	cr := NewCron(nil)
	started := make(chan struct{})
	var cancelled atomic.Bool

	_, err := cr.Add("long", "@every 1s", FuncJob(func(ctx context.Context) {
		select {
		case started <- struct{}{}:
		default:
		}
		<-ctx.Done()
		cancelled.Store(true)
	}))
	require.NoError(t, err)

	cr.Start()
	select {
	case <-started:
	case <-time.After(3 * time.Second):
		t.Fatal("job did not start")
	}
	cr.Stop()
	assert.True(t, cancelled.Load())
}

func TestCronRejectsBadSpec(t *testing.T) {
	_, err := NewCron(nil).Add("bad", "not a spec", FuncJob(func(context.Context) {}))
	assert.Error(t, err)
}
