// Package poller owns the repeating fetch of the upstream order feed and
// the bucketed snapshot the display surfaces render from.
package poller

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/men4u/cds/internal/classify"
	"github.com/men4u/cds/internal/enum"
	"github.com/men4u/cds/internal/session"
	"github.com/men4u/cds/internal/upstream"
)

const (
	fetchRetries   = 3
	retryBaseDelay = 2 * time.Second
)

// Feed is the slice of the upstream client the poller needs.
type Feed interface {
	OrderListView(ctx context.Context, token string, req upstream.OrderListRequest) (upstream.OrderListResponse, error)
}

// Snapshot is one atomic view of an outlet's orders. Renderers always see
// a whole snapshot, never a partially applied poll. When Err is set the
// Orders are the last good ones: stale data stays on screen behind a
// banner rather than flickering to empty during backend trouble.
type Snapshot struct {
	OutletID     int64                  `json:"outlet_id"`
	OutletName   string                 `json:"outlet_name"`
	Filter       session.Filter         `json:"filter"`
	Orders       []classify.Order       `json:"orders"`
	Subscription *upstream.Subscription `json:"subscription_details,omitempty"`
	FetchedAt    time.Time              `json:"fetched_at"`
	Err          string                 `json:"error,omitempty"`
}

// Poller fetches one outlet's feed on an interval. Each issued request
// carries a monotonically increasing sequence number and only the response
// matching the latest issued one is applied, so overlapping requests
// cannot interleave: last-issued wins, not last-to-resolve.
type Poller struct {
	feed     Feed
	store    session.Store
	policy   classify.Policy
	outletID int64
	interval time.Duration
	log      zerolog.Logger

	// onSnapshot fires after every applied poll; onExpired fires once when
	// the upstream reports the session invalid.
	onSnapshot func(Snapshot)
	onExpired  func()

	seq     atomic.Uint64
	expired sync.Once

	mu   sync.Mutex
	snap Snapshot

	kick   chan struct{}
	cancel context.CancelFunc
	done   chan struct{}
}

type Options struct {
	Feed       Feed
	Store      session.Store
	Policy     classify.Policy
	OutletID   int64
	Interval   time.Duration
	Logger     zerolog.Logger
	OnSnapshot func(Snapshot)
	OnExpired  func()
}

func New(opts Options) *Poller {
	if opts.OnSnapshot == nil {
		opts.OnSnapshot = func(Snapshot) {}
	}
	if opts.OnExpired == nil {
		opts.OnExpired = func() {}
	}
	p := &Poller{
		feed:       opts.Feed,
		store:      opts.Store,
		policy:     opts.Policy,
		outletID:   opts.OutletID,
		interval:   opts.Interval,
		log:        opts.Logger.With().Int64("outlet_id", opts.OutletID).Logger(),
		onSnapshot: opts.OnSnapshot,
		onExpired:  opts.OnExpired,
		kick:       make(chan struct{}, 1),
		done:       make(chan struct{}),
	}
	p.snap = Snapshot{OutletID: opts.OutletID, Filter: opts.Store.Filter()}
	return p
}

// Start begins polling: an immediate fetch, then one per interval.
func (p *Poller) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	go p.run(ctx)
}

// Stop halts the timer. An in-flight request is cancelled through its
// context; a response that still lands is discarded by the sequence check.
func (p *Poller) Stop() {
	if p.cancel != nil {
		p.cancel()
		<-p.done
	}
}

// Refresh forces a fetch outside the interval, used when the date filter
// changes. It supersedes any in-flight request.
func (p *Poller) Refresh() {
	select {
	case p.kick <- struct{}{}:
	default:
	}
}

// Snapshot returns the current atomic view.
func (p *Poller) Snapshot() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snap
}

func (p *Poller) run(ctx context.Context) {
	defer close(p.done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.fetch(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.kick:
			p.fetch(ctx)
		case <-ticker.C:
			p.fetch(ctx)
		}
	}
}

func (p *Poller) fetch(ctx context.Context) {
	rec, ok := p.store.Get()
	if !ok {
		// Session gone; the manager will stop us via the store event.
		return
	}

	seq := p.seq.Add(1)
	filter := p.store.Filter()
	req := upstream.OrderListRequest{
		OutletID:   p.outletID,
		DateFilter: filter.Type,
		StartDate:  filter.Start,
		EndDate:    filter.End,
		OwnerID:    rec.OwnerID,
		AppSource:  enum.AppSource,
	}

	resp, err := p.fetchWithRetry(ctx, seq, rec.AccessToken, req)
	if ctx.Err() != nil || p.seq.Load() != seq {
		// Torn down or superseded; this response must be a no-op.
		return
	}

	switch {
	case err == nil:
		p.apply(seq, filter, &resp)
	case errors.Is(err, upstream.ErrSessionExpired):
		p.log.Warn().Msg("upstream session expired mid-poll")
		// Teardown stops this poller and must not wait on its own loop.
		p.expired.Do(func() { go p.onExpired() })
	default:
		p.log.Error().Err(err).Msg("order feed fetch failed")
		p.applyError(seq, filter, "Failed to fetch orders. Please try again.")
	}
}

// fetchWithRetry retries transport failures with a doubling delay, the
// same bounded retry the display always used. Retries abandon early when a
// newer request supersedes this one.
func (p *Poller) fetchWithRetry(ctx context.Context, seq uint64, token string, req upstream.OrderListRequest) (upstream.OrderListResponse, error) {
	var resp upstream.OrderListResponse
	var err error

	delay := retryBaseDelay
	for attempt := 0; attempt <= fetchRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return resp, ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
			if p.seq.Load() != seq {
				return resp, context.Canceled
			}
		}
		resp, err = p.feed.OrderListView(ctx, token, req)
		if err == nil || !transient(err) {
			return resp, err
		}
		p.log.Warn().Err(err).Int("attempt", attempt+1).Msg("retrying order feed fetch")
	}
	return resp, err
}

// transient reports whether the error is worth a retry: transport-level
// failures are, upstream-reported errors are not.
func transient(err error) bool {
	if errors.Is(err, upstream.ErrSessionExpired) || errors.Is(err, context.Canceled) {
		return false
	}
	var apiErr *upstream.APIError
	return !errors.As(err, &apiErr)
}

func (p *Poller) apply(seq uint64, filter session.Filter, resp *upstream.OrderListResponse) {
	orders, err := classify.Classify(resp, p.policy)

	p.mu.Lock()
	if p.seq.Load() != seq {
		p.mu.Unlock()
		return
	}
	if err != nil {
		// Structural error: keep the stale orders, surface the banner.
		p.snap.Err = "Invalid response structure from server"
		p.snap.Filter = filter
		p.snap.FetchedAt = time.Now()
	} else {
		p.snap = Snapshot{
			OutletID:     p.outletID,
			OutletName:   classify.OutletName(resp),
			Filter:       filter,
			Orders:       orders,
			Subscription: resp.Subscription,
			FetchedAt:    time.Now(),
		}
	}
	snap := p.snap
	p.mu.Unlock()

	p.onSnapshot(snap)
}

func (p *Poller) applyError(seq uint64, filter session.Filter, msg string) {
	p.mu.Lock()
	if p.seq.Load() != seq {
		p.mu.Unlock()
		return
	}
	p.snap.Err = msg
	p.snap.Filter = filter
	p.snap.FetchedAt = time.Now()
	snap := p.snap
	p.mu.Unlock()

	p.onSnapshot(snap)
}
