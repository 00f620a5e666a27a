package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/listingwatch/internal/scraper"
)

var (
	// ErrBatchRunning is returned by Start while another batch is active.
	ErrBatchRunning = errors.New("batch already running")
	// ErrBatchNotFound is returned for unknown batch handles.
	ErrBatchNotFound = errors.New("batch not found")
)

// Runner executes one batch.
type Runner interface {
	RunBatch(ctx context.Context, sources []scraper.Source, force bool, state *RunState) Summary
}

// Controller starts batches in the background and tracks their status.
// At most one batch runs at a time.
type Controller struct {
	ctx     context.Context
	runner  Runner
	sources []scraper.Source
	logger  *zap.Logger

	mu      sync.Mutex
	batches map[string]*RunState
	latest  string
	active  string
	wg      sync.WaitGroup
}

// NewController returns a Controller whose batches run under ctx.
func NewController(ctx context.Context, runner Runner, sources []scraper.Source, logger *zap.Logger) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{
		ctx:     ctx,
		runner:  runner,
		sources: append([]scraper.Source(nil), sources...),
		logger:  logger,
		batches: make(map[string]*RunState),
	}
}

// Start launches a batch and returns its handle.
func (c *Controller) Start(force bool) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active != "" {
		return "", ErrBatchRunning
	}
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate batch id: %w", err)
	}
	handle := id.String()
	state := NewRunState(handle, force)
	state.begin(len(c.sources), time.Now().UTC())
	c.batches[handle] = state
	c.latest = handle
	c.active = handle

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer c.release(handle)
		c.runner.RunBatch(c.ctx, c.sources, force, state)
	}()
	c.logger.Info("batch scheduled", zap.String("batch_id", handle), zap.Bool("force", force))
	return handle, nil
}

func (c *Controller) release(handle string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == handle {
		c.active = ""
	}
}

// Cancel requests a graceful stop of the batch.
func (c *Controller) Cancel(handle string) error {
	state, err := c.lookup(handle)
	if err != nil {
		return err
	}
	state.Cancel()
	c.logger.Info("batch cancel requested", zap.String("batch_id", handle))
	return nil
}

// Status reports the batch identified by handle.
func (c *Controller) Status(handle string) (Status, error) {
	state, err := c.lookup(handle)
	if err != nil {
		return Status{}, err
	}
	return state.Snapshot(), nil
}

// Latest reports the most recently started batch.
func (c *Controller) Latest() (Status, error) {
	c.mu.Lock()
	handle := c.latest
	c.mu.Unlock()
	if handle == "" {
		return Status{}, ErrBatchNotFound
	}
	return c.Status(handle)
}

// Running reports whether a batch is active.
func (c *Controller) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active != ""
}

// Wait blocks until every started batch has returned.
func (c *Controller) Wait() {
	c.wg.Wait()
}

func (c *Controller) lookup(handle string) (*RunState, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	state, ok := c.batches[handle]
	if !ok {
		return nil, ErrBatchNotFound
	}
	return state, nil
}
