// Package search debounces query input and decides whether the host should
// list the library or run a search. Every dispatched request carries an epoch
// so results of superseded requests can be recognised and dropped.
package search

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"snaphound/internal/domain"
	"snaphound/internal/eventbus"
	"snaphound/internal/logging"
	"snaphound/internal/metrics"
)

// State is the debounce state of the coordinator
type State int

const (
	StateIdle State = iota
	StatePending
	StateDispatched
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePending:
		return "pending"
	case StateDispatched:
		return "dispatched"
	default:
		return "unknown"
	}
}

// Requester issues the host calls a settled query turns into
type Requester interface {
	ListFiles(ctx context.Context, epoch uint64) error
	Search(ctx context.Context, query string, epoch uint64) error
	CancelSearch(ctx context.Context) error
}

// Timer is the subset of *time.Timer the coordinator needs
type Timer interface {
	Stop() bool
}

// AfterFunc schedules f after d, like time.AfterFunc
type AfterFunc func(d time.Duration, f func()) Timer

func realAfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Options configures a Coordinator
type Options struct {
	Debounce         time.Duration
	MinQueryLength   int
	CancelSuperseded bool // send search_cancel before a request that supersedes a search
	AfterFunc        AfterFunc
	Observer         metrics.Observer
}

// DefaultOptions returns the stock debounce settings
func DefaultOptions() Options {
	return Options{
		Debounce:         500 * time.Millisecond,
		MinQueryLength:   domain.DefaultMinQueryLength,
		CancelSuperseded: true,
	}
}

// Coordinator turns keystrokes into at most one host request per quiet interval
type Coordinator struct {
	bus       eventbus.EventBus
	requester Requester
	opts      Options
	observer  metrics.Observer

	ctx    context.Context
	cancel context.CancelFunc

	mu          sync.Mutex
	query       string
	state       State
	timer       Timer
	generation  uint64
	searchAlive bool // last dispatch was a search whose results may still be streaming

	mode  atomic.Int32
	epoch atomic.Uint64
}

// FirstEpoch tags the initial listing. Epoch 0 is reserved for untagged pushes.
const FirstEpoch uint64 = 1

// NewCoordinator creates a coordinator in listing mode at FirstEpoch
func NewCoordinator(bus eventbus.EventBus, requester Requester, opts Options) *Coordinator {
	defaults := DefaultOptions()
	if opts.Debounce <= 0 {
		opts.Debounce = defaults.Debounce
	}
	if opts.MinQueryLength <= 0 {
		opts.MinQueryLength = defaults.MinQueryLength
	}
	if opts.AfterFunc == nil {
		opts.AfterFunc = realAfterFunc
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Coordinator{
		bus:       bus,
		requester: requester,
		opts:      opts,
		observer:  metrics.OrNop(opts.Observer),
		ctx:       ctx,
		cancel:    cancel,
	}
	c.mode.Store(int32(domain.ModeListing))
	c.epoch.Store(FirstEpoch)
	return c
}

// Input records the latest raw query and restarts the quiet interval
func (c *Coordinator) Input(query string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ctx.Err() != nil {
		return
	}

	c.query = query
	if c.timer != nil {
		c.timer.Stop()
	}
	c.generation++
	gen := c.generation
	c.state = StatePending
	c.timer = c.opts.AfterFunc(c.opts.Debounce, func() { c.fire(gen) })
}

// fire dispatches the settled query if no newer input arrived since gen was armed
func (c *Coordinator) fire(gen uint64) {
	c.mu.Lock()
	if gen != c.generation || c.ctx.Err() != nil {
		c.mu.Unlock()
		return
	}
	c.timer = nil
	c.state = StateDispatched
	query := c.query

	prev := c.Mode()
	next := domain.ClassifyQuery(query, c.opts.MinQueryLength)
	epoch := c.epoch.Add(1)
	c.mode.Store(int32(next))

	cancelFirst := c.opts.CancelSuperseded && c.searchAlive
	c.searchAlive = next == domain.ModeSearching
	c.mu.Unlock()

	logging.Debug("Search: dispatching %s for %q at epoch %d", next, query, epoch)

	// Queued ahead of any push for the new epoch, so stale rows vanish first
	if next == domain.ModeSearching || prev == domain.ModeSearching {
		c.bus.Publish(eventbus.CatalogResetRequestedEvent{Epoch: epoch, Mode: next})
	}

	if cancelFirst {
		if err := c.requester.CancelSearch(c.ctx); err != nil {
			logging.Warn("Search: cancel before epoch %d failed: %v", epoch, err)
		}
	}

	var err error
	op := "list_files"
	if next == domain.ModeSearching {
		op = "search_indexed_data"
		err = c.requester.Search(c.ctx, query, epoch)
	} else {
		err = c.requester.ListFiles(c.ctx, epoch)
	}
	c.observer.ObserveDispatch(next)

	if err != nil {
		logging.Error("Search: %s failed: %v", op, err)
		c.bus.Publish(eventbus.ErrorEvent{Op: op, Message: "Request failed", Err: err})
	} else {
		c.bus.Publish(eventbus.SearchDispatchedEvent{Query: query, Mode: next, Epoch: epoch})
	}

	c.mu.Lock()
	if gen == c.generation && c.state == StateDispatched {
		c.state = StateIdle
	}
	c.mu.Unlock()
}

// Refresh re-requests the listing for the current epoch. It does nothing while searching.
func (c *Coordinator) Refresh(ctx context.Context) error {
	if c.Mode() != domain.ModeListing {
		return nil
	}
	return c.requester.ListFiles(ctx, c.Epoch())
}

// Mode returns the stream currently allowed to populate the catalog
func (c *Coordinator) Mode() domain.Mode {
	return domain.Mode(c.mode.Load())
}

// Epoch returns the epoch of the latest dispatched request
func (c *Coordinator) Epoch() uint64 {
	return c.epoch.Load()
}

// Query returns the last raw input
func (c *Coordinator) Query() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.query
}

// State returns the debounce state
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Accepts reports whether a push for mode tagged with epoch belongs to the
// current request. Untagged pushes (epoch 0) are judged by mode alone.
func (c *Coordinator) Accepts(mode domain.Mode, epoch uint64) bool {
	if mode != c.Mode() {
		return false
	}
	return epoch == 0 || epoch == c.Epoch()
}

// Stop cancels the armed timer; later input is ignored
func (c *Coordinator) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.generation++
	c.state = StateIdle
	c.cancel()
}
