// Package ingest applies messages pushed by the host to the catalog.
//
// Messages are re-published on the event bus as they arrive and handled by
// the bus dispatcher, which makes it the only goroutine that mutates the
// catalog and keeps batches in arrival order.
package ingest

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"

	"snaphound/internal/catalog"
	"snaphound/internal/domain"
	"snaphound/internal/eventbus"
	"snaphound/internal/logging"
	"snaphound/internal/metrics"
)

// Host message names
const (
	MsgStatusUpdate   = "status_update"
	MsgIndexStatus    = "index_status"
	MsgError          = "error"
	MsgSuccess        = "success"
	MsgFilePath       = "file_path"
	MsgFilePathEnd    = "file_path_end"
	MsgCanFetchList   = "can_fetch_list"
	MsgSearchedResult = "searched_result"
	MsgRemoveAllData  = "remove_all_data"
	MsgSuccessReset   = "success_reset"
)

var errStreamEnded = errors.New("event stream ended")

// Subscriber is the host push channel
type Subscriber interface {
	Subscribe(ctx context.Context, handler func(domain.PushMessage)) error
}

// ModeSource tells the ingestor which stream currently owns the catalog
type ModeSource interface {
	Accepts(mode domain.Mode, epoch uint64) bool
	Refresh(ctx context.Context) error
}

// Timer is the subset of *time.Timer used for the reload delay
type Timer interface {
	Stop() bool
}

// Options configures an Ingestor
type Options struct {
	ReloadDelay     time.Duration
	Reload          func(ctx context.Context) error // called once the reload delay elapsed
	InitialInterval time.Duration                   // first resubscribe wait
	MaxInterval     time.Duration
	Observer        metrics.Observer
	AfterFunc       func(d time.Duration, f func()) Timer
}

// Ingestor routes host messages to the catalog and the status sink
type Ingestor struct {
	bus      eventbus.EventBus
	catalog  *catalog.Catalog
	modes    ModeSource
	opts     Options
	observer metrics.Observer

	ctx    context.Context
	cancel context.CancelFunc
	unsubs []func()

	mu          sync.Mutex
	reloadTimer Timer
}

// New creates an ingestor and registers its handlers on the bus
func New(bus eventbus.EventBus, cat *catalog.Catalog, modes ModeSource, opts Options) *Ingestor {
	if opts.ReloadDelay <= 0 {
		opts.ReloadDelay = time.Second
	}
	if opts.InitialInterval <= 0 {
		opts.InitialInterval = 500 * time.Millisecond
	}
	if opts.MaxInterval <= 0 {
		opts.MaxInterval = 30 * time.Second
	}
	if opts.AfterFunc == nil {
		opts.AfterFunc = func(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }
	}

	ctx, cancel := context.WithCancel(context.Background())
	i := &Ingestor{
		bus:      bus,
		catalog:  cat,
		modes:    modes,
		opts:     opts,
		observer: metrics.OrNop(opts.Observer),
		ctx:      ctx,
		cancel:   cancel,
	}

	i.unsubs = append(i.unsubs,
		bus.Subscribe(eventbus.EventPushReceived, i.handlePushReceived),
		bus.Subscribe(eventbus.EventCatalogResetRequested, i.handleResetRequested),
	)
	return i
}

// Run keeps a subscription to the host open until ctx is done. Failed or
// ended subscriptions are retried with exponential backoff.
func (i *Ingestor) Run(ctx context.Context, sub Subscriber) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = i.opts.InitialInterval
	policy.MaxInterval = i.opts.MaxInterval
	policy.MaxElapsedTime = 0

	operation := func() error {
		var received atomic.Bool
		err := sub.Subscribe(ctx, func(msg domain.PushMessage) {
			received.Store(true)
			i.Publish(msg)
		})
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		if received.Load() {
			// A stream that delivered data was healthy; start over from the shortest wait
			policy.Reset()
		}
		if err == nil {
			return errStreamEnded
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		i.observer.ObserveSubscriptionFailure()
		logging.Warn("Ingest: subscription lost, retrying in %s: %v", wait, err)
		i.bus.Publish(eventbus.ErrorEvent{Op: "subscribe", Message: "Lost connection to host, reconnecting", Err: err})
	}

	logging.Info("Ingest: subscribing to host events")
	err := backoff.RetryNotify(operation, backoff.WithContext(policy, ctx), notify)
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// Publish queues a received message for the dispatcher
func (i *Ingestor) Publish(msg domain.PushMessage) {
	i.observer.ObservePush(msg.Name)
	i.bus.Publish(eventbus.PushReceivedEvent{Message: msg})
}

func (i *Ingestor) handlePushReceived(event eventbus.DomainEvent) {
	if e, ok := event.(eventbus.PushReceivedEvent); ok {
		i.Handle(e.Message)
	}
}

func (i *Ingestor) handleResetRequested(event eventbus.DomainEvent) {
	e, ok := event.(eventbus.CatalogResetRequestedEvent)
	if !ok {
		return
	}
	logging.Debug("Ingest: clearing catalog for %s epoch %d", e.Mode, e.Epoch)
	i.catalog.Clear()
	i.catalogChanged("reset")
}

// Handle applies one host message. It must only be called from the bus
// dispatcher (or a test standing in for it).
func (i *Ingestor) Handle(msg domain.PushMessage) {
	switch msg.Name {
	case MsgStatusUpdate, MsgIndexStatus:
		i.status(msg, domain.StatusInfo)

	case MsgError:
		i.status(msg, domain.StatusError)

	case MsgSuccess:
		i.status(msg, domain.StatusSuccess)

	case MsgFilePath:
		if !i.accept(msg, domain.ModeListing) {
			return
		}
		i.merge(msg)

	case MsgFilePathEnd:
		if !i.accept(msg, domain.ModeListing) {
			return
		}
		if i.catalog.FinalizeIfEmpty() {
			i.catalogChanged("empty")
		}

	case MsgCanFetchList:
		i.bus.Publish(eventbus.HostReadyEvent{})
		if !i.accept(msg, domain.ModeListing) {
			return
		}
		// Off the dispatcher so a slow host cannot stall message handling
		go func() {
			if err := i.modes.Refresh(i.ctx); err != nil && i.ctx.Err() == nil {
				logging.Error("Ingest: listing request failed: %v", err)
				i.bus.Publish(eventbus.ErrorEvent{Op: "list_files", Message: "Failed to request listing", Err: err})
			}
		}()

	case MsgSearchedResult:
		if !i.accept(msg, domain.ModeSearching) {
			return
		}
		i.merge(msg)

	case MsgRemoveAllData:
		i.catalog.Clear()
		i.catalogChanged("removed")

	case MsgSuccessReset:
		i.armReload()

	default:
		logging.Debug("Ingest: ignoring unknown message %q", msg.Name)
	}
}

// accept reports whether msg belongs to the stream that currently owns the catalog
func (i *Ingestor) accept(msg domain.PushMessage, mode domain.Mode) bool {
	if i.modes.Accepts(mode, msg.Epoch) {
		return true
	}
	logging.Debug("Ingest: dropping stale %s (epoch %d)", msg.Name, msg.Epoch)
	i.observer.ObserveStaleEvent(msg.Name)
	return false
}

func (i *Ingestor) merge(msg domain.PushMessage) {
	batch, err := decodeDescriptors(msg.Payload)
	if err != nil {
		logging.Warn("Ingest: %s: %v", msg.Name, err)
		i.bus.Publish(eventbus.ErrorEvent{Op: msg.Name, Message: "Received an unreadable batch", Err: err})
		return
	}
	if len(batch) == 0 {
		return
	}
	added := i.catalog.Merge(batch)
	logging.Debug("Ingest: %s merged %d descriptors (%d new)", msg.Name, len(batch), added)
	i.catalogChanged(msg.Name)
}

func (i *Ingestor) status(msg domain.PushMessage, level domain.StatusLevel) {
	i.bus.Publish(eventbus.StatusUpdatedEvent{
		Source: msg.Name,
		Text:   decodeText(msg.Payload),
		Level:  level,
	})
}

func (i *Ingestor) catalogChanged(reason string) {
	size := i.catalog.Len()
	i.observer.ObserveCatalogSize(size)
	i.bus.Publish(eventbus.CatalogChangedEvent{Reason: reason, Size: size})
}

// armReload schedules the client reload, replacing a reload already pending
func (i *Ingestor) armReload() {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.ctx.Err() != nil {
		return
	}
	if i.reloadTimer != nil {
		i.reloadTimer.Stop()
	}
	logging.Info("Ingest: host reset complete, reloading in %s", i.opts.ReloadDelay)
	i.reloadTimer = i.opts.AfterFunc(i.opts.ReloadDelay, i.reload)
}

func (i *Ingestor) reload() {
	i.mu.Lock()
	i.reloadTimer = nil
	i.mu.Unlock()

	if i.ctx.Err() != nil {
		return
	}
	i.bus.Publish(eventbus.ReloadRequestedEvent{})
	if i.opts.Reload == nil {
		return
	}
	if err := i.opts.Reload(i.ctx); err != nil {
		logging.Error("Ingest: reload failed: %v", err)
		i.bus.Publish(eventbus.ErrorEvent{Op: "relaunch", Message: "Failed to reload", Err: err})
	}
}

// Stop cancels a pending reload and detaches from the bus
func (i *Ingestor) Stop() {
	i.mu.Lock()
	if i.reloadTimer != nil {
		i.reloadTimer.Stop()
		i.reloadTimer = nil
	}
	i.mu.Unlock()

	i.cancel()
	for _, unsub := range i.unsubs {
		unsub()
	}
	i.unsubs = nil
}
