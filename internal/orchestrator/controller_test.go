package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/listingwatch/internal/scraper"
)

// blockingRunner holds each batch open until release is closed.
type blockingRunner struct {
	started chan *RunState
	release chan struct{}
}

func (r *blockingRunner) RunBatch(_ context.Context, sources []scraper.Source, _ bool, state *RunState) Summary {
	state.begin(len(sources), time.Now())
	r.started <- state
	<-r.release
	for range sources {
		if state.Canceled() {
			break
		}
		state.record(Outcome{Status: scraper.AuditUnchanged})
	}
	return state.finish(time.Now())
}

func TestControllerLifecycle(t *testing.T) {
	t.Parallel()

	runner := &blockingRunner{started: make(chan *RunState, 1), release: make(chan struct{})}
	c := NewController(context.Background(), runner, testSources(2), nil)

	_, err := c.Latest()
	require.ErrorIs(t, err, ErrBatchNotFound)

	id, err := c.Start(true)
	require.NoError(t, err)
	require.NotEmpty(t, id)
	<-runner.started

	_, err = c.Start(false)
	require.ErrorIs(t, err, ErrBatchRunning)

	status, err := c.Status(id)
	require.NoError(t, err)
	assert.True(t, status.Running)
	assert.True(t, status.Force)
	assert.Equal(t, 2, status.Total)

	close(runner.release)
	c.Wait()

	status, err = c.Latest()
	require.NoError(t, err)
	assert.Equal(t, id, status.ID)
	assert.False(t, status.Running)
	assert.Equal(t, 2, status.Progress)
	assert.False(t, c.Running())

	runner.started = make(chan *RunState, 1)
	next, err := c.Start(false)
	require.NoError(t, err)
	assert.NotEqual(t, id, next)
	c.Wait()
}

func TestControllerCancel(t *testing.T) {
	t.Parallel()

	runner := &blockingRunner{started: make(chan *RunState, 1), release: make(chan struct{})}
	c := NewController(context.Background(), runner, testSources(3), nil)

	require.ErrorIs(t, c.Cancel("missing"), ErrBatchNotFound)
	_, err := c.Status("missing")
	require.ErrorIs(t, err, ErrBatchNotFound)

	id, err := c.Start(false)
	require.NoError(t, err)
	<-runner.started
	require.NoError(t, c.Cancel(id))
	close(runner.release)

	require.Eventually(t, func() bool { return !c.Running() }, time.Second, 10*time.Millisecond)
	status, err := c.Status(id)
	require.NoError(t, err)
	assert.True(t, status.Canceled)
	assert.Zero(t, status.Progress)
}
