// Package visibility defers resolving an item's resource until the item has
// actually been shown, and resolves it at most once per mounted item.
package visibility

import (
	"sync"

	"snaphound/internal/domain"
	"snaphound/internal/eventbus"
	"snaphound/internal/logging"
	"snaphound/internal/metrics"
)

// DefaultThreshold is the fraction of an item that must be on screen
const DefaultThreshold = 0.1

// Resolver converts a host path into a loadable URI
type Resolver func(path string) string

// slot is the per-item state. uri is written once per path.
type slot struct {
	desc     domain.MediaDescriptor
	visible  bool
	resolved bool
	hidden   bool
	uri      string
}

// Gate tracks mounted items and their resolution state
type Gate struct {
	mu        sync.Mutex
	resolver  Resolver
	threshold float64
	slots     map[string]*slot

	bus      eventbus.EventBus
	observer metrics.Observer
}

// NewGate creates a gate. A threshold outside (0, 1] falls back to DefaultThreshold.
func NewGate(resolver Resolver, threshold float64) *Gate {
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultThreshold
	}
	return &Gate{
		resolver:  resolver,
		threshold: threshold,
		slots:     make(map[string]*slot),
		observer:  metrics.Nop{},
	}
}

// SetEventBus sets the bus load failures are reported on
func (g *Gate) SetEventBus(bus eventbus.EventBus) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.bus = bus
}

// SetObserver sets the metrics observer
func (g *Gate) SetObserver(o metrics.Observer) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.observer = metrics.OrNop(o)
}

// Threshold returns the visibility threshold in use
func (g *Gate) Threshold() float64 {
	return g.threshold
}

// Sync mounts items, unmounts slots whose ids are gone and returns the ids
// whose render changed. A changed path forgets the previous resolution.
func (g *Gate) Sync(items []domain.MediaDescriptor) []string {
	g.mu.Lock()
	defer g.mu.Unlock()

	var changed []string
	present := make(map[string]struct{}, len(items))
	for _, d := range items {
		present[d.ID] = struct{}{}

		s, ok := g.slots[d.ID]
		if !ok {
			g.slots[d.ID] = &slot{desc: d}
			changed = append(changed, d.ID)
			continue
		}
		if s.desc.Equal(d) {
			continue
		}
		if s.desc.Path != d.Path {
			*s = slot{}
		}
		s.desc = d
		changed = append(changed, d.ID)
	}

	for id := range g.slots {
		if _, ok := present[id]; !ok {
			delete(g.slots, id)
		}
	}
	return changed
}

// Observe records the intersection ratio of a mounted item. The first
// observation at or above the threshold resolves the item's URI; it returns
// the URI and true only on that observation.
func (g *Gate) Observe(id string, ratio float64) (string, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	s, ok := g.slots[id]
	if !ok {
		return "", false
	}
	s.visible = ratio >= g.threshold
	if !s.visible || s.resolved || s.hidden {
		return "", false
	}
	if s.desc.IsSentinel() || s.desc.Path == "" {
		return "", false
	}

	s.uri = g.resolver(s.desc.Path)
	s.resolved = true
	g.observer.ObserveResourceResolved()
	return s.uri, true
}

// URI returns the resolved URI of a mounted item, if any
func (g *Gate) URI(id string) (string, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	s, ok := g.slots[id]
	if !ok || !s.resolved {
		return "", false
	}
	return s.uri, true
}

// Visible reports whether the item was visible at its last observation
func (g *Gate) Visible(id string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	s, ok := g.slots[id]
	return ok && s.visible
}

// Hidden reports whether the item's resource failed to load
func (g *Gate) Hidden(id string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	s, ok := g.slots[id]
	return ok && s.hidden
}

// MarkFailed hides an item whose resource could not be loaded
func (g *Gate) MarkFailed(id string, err error) {
	g.mu.Lock()
	s, ok := g.slots[id]
	if !ok || s.hidden {
		g.mu.Unlock()
		return
	}
	s.hidden = true
	uri := s.uri
	bus := g.bus
	g.observer.ObserveResourceFailure()
	g.mu.Unlock()

	logging.Debug("Visibility: hiding %s after load failure: %v", id, err)
	if bus != nil {
		bus.Publish(eventbus.ResourceFailedEvent{ID: id, URI: uri, Err: err})
	}
}

// Ratio returns the fraction of an item's rows that fall inside the viewport
func Ratio(itemTop, itemHeight, viewTop, viewHeight int) float64 {
	if itemHeight <= 0 || viewHeight <= 0 {
		return 0
	}
	top := max(itemTop, viewTop)
	bottom := min(itemTop+itemHeight, viewTop+viewHeight)
	if bottom <= top {
		return 0
	}
	return float64(bottom-top) / float64(itemHeight)
}
