// Package phase implements the cache sink's Markets→Others phase state
// machine: non-market envelopes observed before at least one market
// snapshot has fully landed are queued rather than processed, because
// liquidation math needs market state (margin ratio, cumulative funding,
// mark price) to be meaningful.
package phase

import (
	"sync"

	"injdata/envelope"
)

// Phase is one of the two states a cache-sink instance can be in, one-way.
type Phase string

const (
	Markets Phase = "markets"
	Others  Phase = "others"
)

// Machine tracks phase, the set of markets still awaited, and the envelopes
// deferred while in Markets. All fields are guarded by one mutex, dropped
// before the caller does anything with the drained envelopes (§9: "drop the
// lock before any pub/sub publish").
type Machine struct {
	mu sync.Mutex

	phase            Phase
	pendingMarkets   map[string]struct{}
	deferred         []envelope.Envelope
	marketsProcessed int
	knownMarkets     int
}

// NewMachine returns a Machine starting in the Markets phase.
func NewMachine() *Machine {
	return &Machine{
		phase:          Markets,
		pendingMarkets: make(map[string]struct{}),
	}
}

// Phase returns the current phase.
func (m *Machine) Phase() Phase {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.phase
}

// ObserveMarkets registers a batch of market ids seen in a DerivativeMarket
// envelope as pending, to be cleared one at a time as §4.5 processing of
// each market completes.
func (m *Machine) ObserveMarkets(ids []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		m.pendingMarkets[id] = struct{}{}
	}
	m.knownMarkets += len(ids)
}

// Transition is the result of MarketProcessed when it causes the one-way
// Markets→Others edge to fire.
type Transition struct {
	Occurred       bool
	Drained        []envelope.Envelope
	ProcessedCount int
	MarketCount    int
}

// MarketProcessed records that market id has finished §4.5 processing. When
// this empties pending_markets and at least one market has ever been
// processed, it fires the one-way transition to Others, returning the
// deferred queue to drain (FIFO) and resetting it to permanently empty.
func (m *Machine) MarketProcessed(id string) Transition {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.pendingMarkets, id)
	m.marketsProcessed++

	if m.phase == Markets && len(m.pendingMarkets) == 0 && m.marketsProcessed > 0 {
		m.phase = Others
		drained := m.deferred
		m.deferred = nil
		return Transition{
			Occurred:       true,
			Drained:        drained,
			ProcessedCount: m.marketsProcessed,
			MarketCount:    m.knownMarkets,
		}
	}
	return Transition{}
}

// DeferIfMarkets queues env and returns true if the machine is still in the
// Markets phase; otherwise it is a no-op and the caller should process env
// immediately.
func (m *Machine) DeferIfMarkets(env envelope.Envelope) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.phase != Markets {
		return false
	}
	m.deferred = append(m.deferred, env)
	return true
}

// DeferredDepth returns the current size of the deferred queue, for metrics.
func (m *Machine) DeferredDepth() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.deferred)
}

// KnownMarkets returns the total number of market ids passed to
// ObserveMarkets, repeats included (also reported as
// Transition.MarketCount); it never gates the transition itself.
func (m *Machine) KnownMarkets() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.knownMarkets
}
