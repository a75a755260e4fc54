package poller

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/men4u/cds/internal/classify"
	"github.com/men4u/cds/internal/session"
)

// Manager runs at most one poller per outlet. Selecting an outlet (the
// first display subscribing to it) starts its poller; the last display
// leaving stops it. Clearing the session stops everything, so no further
// poll requests go out after a logout or expiry.
type Manager struct {
	feed     Feed
	store    session.Store
	policy   classify.Policy
	interval time.Duration
	log      zerolog.Logger

	onSnapshot func(Snapshot)
	onExpired  func()

	mu      sync.Mutex
	pollers map[int64]*Poller
	refs    map[int64]int
}

type ManagerOptions struct {
	Feed       Feed
	Store      session.Store
	Policy     classify.Policy
	Interval   time.Duration
	Logger     zerolog.Logger
	OnSnapshot func(Snapshot)
	OnExpired  func()
}

func NewManager(opts ManagerOptions) *Manager {
	m := &Manager{
		feed:       opts.Feed,
		store:      opts.Store,
		policy:     opts.Policy,
		interval:   opts.Interval,
		log:        opts.Logger,
		onSnapshot: opts.OnSnapshot,
		onExpired:  opts.OnExpired,
		pollers:    make(map[int64]*Poller),
		refs:       make(map[int64]int),
	}
	// Session teardown (logout or expiry) stops all polling.
	opts.Store.Subscribe(func(ev session.Event) {
		if ev.Type == session.EventCleared {
			m.StopAll()
		}
	})
	return m
}

// Subscribe marks an outlet as selected by one more display and starts its
// poller if it is the first.
func (m *Manager) Subscribe(outletID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.refs[outletID]++
	if m.refs[outletID] > 1 {
		return
	}

	p := New(Options{
		Feed:       m.feed,
		Store:      m.store,
		Policy:     m.policy,
		OutletID:   outletID,
		Interval:   m.interval,
		Logger:     m.log,
		OnSnapshot: m.onSnapshot,
		OnExpired:  m.onExpired,
	})
	m.pollers[outletID] = p
	p.Start()
	m.log.Info().Int64("outlet_id", outletID).Msg("outlet selected, polling started")
}

// Unsubscribe releases one display's claim on an outlet, stopping the
// poller when nobody watches it anymore.
func (m *Manager) Unsubscribe(outletID int64) {
	m.mu.Lock()
	if m.refs[outletID] == 0 {
		m.mu.Unlock()
		return
	}
	m.refs[outletID]--
	if m.refs[outletID] > 0 {
		m.mu.Unlock()
		return
	}
	delete(m.refs, outletID)
	p := m.pollers[outletID]
	delete(m.pollers, outletID)
	m.mu.Unlock()

	if p != nil {
		p.Stop()
		m.log.Info().Int64("outlet_id", outletID).Msg("outlet unselected, polling stopped")
	}
}

// Snapshot returns the current view for an outlet, if it is being polled.
func (m *Manager) Snapshot(outletID int64) (Snapshot, bool) {
	m.mu.Lock()
	p, ok := m.pollers[outletID]
	m.mu.Unlock()
	if !ok {
		return Snapshot{}, false
	}
	return p.Snapshot(), true
}

// Refresh re-fetches every polled outlet immediately, used after a date
// filter change.
func (m *Manager) Refresh() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.pollers {
		p.Refresh()
	}
}

// StopAll tears down every poller and forgets all subscriptions.
func (m *Manager) StopAll() {
	m.mu.Lock()
	pollers := m.pollers
	m.pollers = make(map[int64]*Poller)
	m.refs = make(map[int64]int)
	m.mu.Unlock()

	for _, p := range pollers {
		p.Stop()
	}
}
