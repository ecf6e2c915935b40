// Package status runs the live status poller behind the flow dashboard and
// renders its snapshots.
package status

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/ashureev/pagedesk/internal/domain"
	"github.com/ashureev/pagedesk/internal/remote"
)

// State is the lifecycle state of a Poller.
type State int

const (
	StateIdle State = iota
	StatePolling
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePolling:
		return "polling"
	case StateStopped:
		return "stopped"
	}
	return "unknown"
}

const (
	DefaultInterval         = 30 * time.Second
	DefaultFailureThreshold = 3
	defaultFetchTimeout     = 10 * time.Second
)

// Renderer receives poller outcomes.
type Renderer interface {
	// Render replaces the rendered regions with a fresh snapshot.
	Render(ctx context.Context, snap *domain.StatusSnapshot) error
	// ReportFailure is called once when a failure streak reaches the threshold.
	ReportFailure(ctx context.Context, err error, consecutive int)
	// ClearFailure is called on the first success after a reported streak.
	ClearFailure(ctx context.Context)
}

// TickFunc starts a periodic tick source and returns it with its stop function.
type TickFunc func(d time.Duration) (<-chan time.Time, func())

func realTicker(d time.Duration) (<-chan time.Time, func()) {
	t := time.NewTicker(d)
	return t.C, t.Stop
}

// Options configure a Poller.
type Options struct {
	Interval         time.Duration
	FetchTimeout     time.Duration
	FailureThreshold int
	Logger           *slog.Logger
	Tick             TickFunc
}

// Poller fetches a status snapshot immediately on Start and then once per
// interval until Stop. Fetches never overlap; ticks that arrive while a fetch
// runs are dropped.
type Poller struct {
	source       remote.StatusSource
	renderer     Renderer
	interval     time.Duration
	fetchTimeout time.Duration
	threshold    int
	logger       *slog.Logger
	tick         TickFunc

	refresh chan struct{}

	mu       sync.Mutex
	state    State
	cancel   context.CancelFunc
	done     chan struct{}
	last     *domain.StatusSnapshot
	failures int
	alerted  bool
}

// NewPoller creates an idle poller.
func NewPoller(source remote.StatusSource, renderer Renderer, opts Options) *Poller {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = min(defaultFetchTimeout, opts.Interval)
	}
	if opts.FailureThreshold <= 0 {
		opts.FailureThreshold = DefaultFailureThreshold
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Tick == nil {
		opts.Tick = realTicker
	}
	return &Poller{
		source:       source,
		renderer:     renderer,
		interval:     opts.Interval,
		fetchTimeout: opts.FetchTimeout,
		threshold:    opts.FailureThreshold,
		logger:       opts.Logger,
		tick:         opts.Tick,
		refresh:      make(chan struct{}, 1),
	}
}

// Start moves an idle poller to Polling. It reports false if the poller was
// already started or stopped.
func (p *Poller) Start(ctx context.Context) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != StateIdle {
		return false
	}

	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	p.state = StatePolling

	ticks, stopTicks := p.tick(p.interval)
	go p.run(ctx, ticks, stopTicks, p.done)
	p.logger.Debug("Status poller started", "interval", p.interval)
	return true
}

// Stop ends polling for good and waits for the loop to exit. No fetch
// starts after Stop returns. It is safe to call more than once.
func (p *Poller) Stop() {
	p.mu.Lock()
	prev := p.state
	p.state = StateStopped
	cancel, done := p.cancel, p.done
	p.mu.Unlock()

	if prev != StatePolling {
		return
	}
	cancel()
	<-done
	p.logger.Debug("Status poller stopped")
}

// Refresh asks for an out-of-band fetch. Requests made while one is pending are merged.
func (p *Poller) Refresh() {
	select {
	case p.refresh <- struct{}{}:
	default:
	}
}

// State returns the lifecycle state.
func (p *Poller) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Last returns the last snapshot that was fetched and rendered, or nil.
func (p *Poller) Last() *domain.StatusSnapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.last
}

// Failures returns the length of the current failure streak.
func (p *Poller) Failures() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.failures
}

func (p *Poller) run(ctx context.Context, ticks <-chan time.Time, stopTicks func(), done chan struct{}) {
	defer close(done)
	defer stopTicks()

	p.poll(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticks:
			p.poll(ctx)
		case <-p.refresh:
			p.poll(ctx)
		}
	}
}

func (p *Poller) poll(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	fetchCtx, cancel := context.WithTimeout(ctx, p.fetchTimeout)
	snap, err := p.source.GetFlowStatus(fetchCtx)
	cancel()

	// A fetch cut short by Stop is neither a success nor a failure.
	if ctx.Err() != nil {
		return
	}
	if err != nil {
		p.fail(ctx, err)
		return
	}

	// Last only ever holds a snapshot that is on screen.
	if err := p.renderer.Render(ctx, snap); err != nil {
		p.fail(ctx, fmt.Errorf("render status: %w", err))
		return
	}

	p.mu.Lock()
	p.last = snap
	recovered := p.alerted
	p.failures = 0
	p.alerted = false
	p.mu.Unlock()

	if recovered {
		p.logger.Info("Status polling recovered")
		p.renderer.ClearFailure(ctx)
	}
}

func (p *Poller) fail(ctx context.Context, err error) {
	p.mu.Lock()
	p.failures++
	n := p.failures
	report := n >= p.threshold && !p.alerted
	if report {
		p.alerted = true
	}
	p.mu.Unlock()

	p.logger.Warn("Status fetch failed", "error", err, "consecutive", n)
	if report {
		p.renderer.ReportFailure(ctx, err, n)
	}
}

// RouteMatches reports whether the shell's current route belongs to the
// dashboard the poller serves.
func RouteMatches(route, dashboardRoute string) bool {
	return dashboardRoute != "" && strings.Contains(route, dashboardRoute)
}
