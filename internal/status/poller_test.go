package status

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/ashureev/pagedesk/internal/domain"
	"github.com/ashureev/pagedesk/internal/view"
)

type fakeSource struct {
	mu      sync.Mutex
	calls   int
	results []error
	fetched chan struct{}
}

func newFakeSource(results ...error) *fakeSource {
	return &fakeSource{results: results, fetched: make(chan struct{}, 16)}
}

func (f *fakeSource) GetFlowStatus(context.Context) (*domain.StatusSnapshot, error) {
	f.mu.Lock()
	f.calls++
	var err error
	if len(f.results) > 0 {
		err = f.results[0]
		f.results = f.results[1:]
	}
	n := f.calls
	f.mu.Unlock()

	defer func() { f.fetched <- struct{}{} }()
	if err != nil {
		return nil, err
	}
	return &domain.StatusSnapshot{
		WebhookStatus:  []domain.WebhookStatus{{AccountName: "Shop", WebhookActive: true}},
		RecentActivity: domain.RecentActivity{LeadsToday: n},
	}, nil
}

func (f *fakeSource) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeRenderer struct {
	mu        sync.Mutex
	renders   []*domain.StatusSnapshot
	reported  []int
	cleared   int
	renderErr error
}

func (r *fakeRenderer) Render(_ context.Context, snap *domain.StatusSnapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.renderErr != nil {
		return r.renderErr
	}
	r.renders = append(r.renders, snap)
	return nil
}

func (r *fakeRenderer) ReportFailure(_ context.Context, _ error, consecutive int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reported = append(r.reported, consecutive)
}

func (r *fakeRenderer) ClearFailure(context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cleared++
}

func (r *fakeRenderer) renderCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.renders)
}

// manualTicks hands the poller a tick channel driven by the test.
func manualTicks() (TickFunc, chan time.Time, *bool) {
	ch := make(chan time.Time)
	stopped := false
	return func(time.Duration) (<-chan time.Time, func()) {
		return ch, func() { stopped = true }
	}, ch, &stopped
}

func waitFetch(t *testing.T, src *fakeSource) {
	t.Helper()
	select {
	case <-src.fetched:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for fetch")
	}
}

func TestPollerFetchesImmediatelyThenPerTick(t *testing.T) {
	src := newFakeSource()
	tick, ticks, tickerStopped := manualTicks()
	p := NewPoller(src, &fakeRenderer{}, Options{Interval: time.Minute, Tick: tick})

	if !p.Start(context.Background()) {
		t.Fatal("Start returned false")
	}
	waitFetch(t, src)
	if src.count() != 1 {
		t.Fatalf("expected one immediate fetch, got %d", src.count())
	}
	if p.State() != StatePolling {
		t.Errorf("expected polling, got %v", p.State())
	}

	ticks <- time.Now()
	waitFetch(t, src)
	ticks <- time.Now()
	waitFetch(t, src)

	p.Stop()
	if src.count() != 3 {
		t.Errorf("expected 3 fetches, got %d", src.count())
	}
	if !*tickerStopped {
		t.Error("ticker not stopped")
	}
	if p.State() != StateStopped {
		t.Errorf("expected stopped, got %v", p.State())
	}
}

func TestPollerNoFetchAfterStop(t *testing.T) {
	src := newFakeSource()
	tick, ticks, _ := manualTicks()
	p := NewPoller(src, &fakeRenderer{}, Options{Tick: tick})

	p.Start(context.Background())
	waitFetch(t, src)
	p.Stop()
	p.Stop()

	// The loop has exited, so nobody receives the tick.
	select {
	case ticks <- time.Now():
		t.Fatal("tick delivered after Stop")
	case <-time.After(50 * time.Millisecond):
	}
	p.Refresh()
	time.Sleep(20 * time.Millisecond)

	if src.count() != 1 {
		t.Errorf("expected no fetch after Stop, got %d", src.count())
	}
	if p.Start(context.Background()) {
		t.Error("stopped poller must not restart")
	}
}

func TestPollerStopBeforeStart(t *testing.T) {
	src := newFakeSource()
	p := NewPoller(src, &fakeRenderer{}, Options{})

	p.Stop()
	if p.State() != StateStopped {
		t.Fatalf("expected stopped, got %v", p.State())
	}
	if p.Start(context.Background()) {
		t.Error("Start after Stop must be refused")
	}
	if src.count() != 0 {
		t.Errorf("expected no fetch, got %d", src.count())
	}
}

func TestPollerFailureKeepsLastRender(t *testing.T) {
	src := newFakeSource(nil, errors.New("boom"))
	r := &fakeRenderer{}
	p := NewPoller(src, r, Options{})
	ctx := context.Background()

	p.poll(ctx)
	first := p.Last()
	p.poll(ctx)

	if r.renderCount() != 1 {
		t.Errorf("failed fetch must not render, got %d renders", r.renderCount())
	}
	if p.Last() != first {
		t.Error("failed fetch replaced the last snapshot")
	}
	if p.Failures() != 1 {
		t.Errorf("expected streak of 1, got %d", p.Failures())
	}
	if len(r.reported) != 0 {
		t.Error("a single failure must stay silent")
	}
}

func TestPollerRenderFailureKeepsLastSnapshot(t *testing.T) {
	src := newFakeSource()
	r := &fakeRenderer{}
	p := NewPoller(src, r, Options{FailureThreshold: 2})
	ctx := context.Background()

	p.poll(ctx)
	shown := p.Last()
	if shown == nil {
		t.Fatal("expected a rendered snapshot")
	}

	r.renderErr = errors.New("connection gone")
	p.poll(ctx)
	if p.Last() != shown {
		t.Error("a snapshot that was never rendered became the last one")
	}
	if p.Failures() != 1 {
		t.Errorf("expected render failure to extend the streak, got %d", p.Failures())
	}

	p.poll(ctx)
	if len(r.reported) != 1 || r.reported[0] != 2 {
		t.Errorf("expected one report at the threshold, got %v", r.reported)
	}
}

func TestPollerReportsFailureOncePerStreak(t *testing.T) {
	fail := errors.New("unreachable")
	src := newFakeSource(fail, fail, fail, fail, fail, nil, fail)
	r := &fakeRenderer{}
	p := NewPoller(src, r, Options{FailureThreshold: 3})
	ctx := context.Background()

	for range 5 {
		p.poll(ctx)
	}
	if len(r.reported) != 1 || r.reported[0] != 3 {
		t.Fatalf("expected one report at 3 failures, got %v", r.reported)
	}

	p.poll(ctx)
	if r.cleared != 1 || p.Failures() != 0 {
		t.Errorf("success must clear the alert: cleared=%d failures=%d", r.cleared, p.Failures())
	}

	p.poll(ctx)
	if len(r.reported) != 1 {
		t.Errorf("new streak below threshold must not report, got %v", r.reported)
	}
}

func TestPollerAppliesFetchTimeout(t *testing.T) {
	src := &blockingSource{}
	r := &fakeRenderer{}
	p := NewPoller(src, r, Options{FetchTimeout: 20 * time.Millisecond, FailureThreshold: 1})

	p.poll(context.Background())
	if len(r.reported) != 1 {
		t.Fatalf("expected timed out fetch to count as failure, got %v", r.reported)
	}
}

type blockingSource struct{}

func (blockingSource) GetFlowStatus(ctx context.Context) (*domain.StatusSnapshot, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestRouteMatches(t *testing.T) {
	tests := []struct {
		route, dashboard string
		want             bool
	}{
		{"/flow_diagram", "flow_diagram", true},
		{"/app/flow_diagram?x=1", "flow_diagram", true},
		{"/app/facebook-messages", "flow_diagram", false},
		{"/flow_diagram", "", false},
	}
	for _, tt := range tests {
		if got := RouteMatches(tt.route, tt.dashboard); got != tt.want {
			t.Errorf("RouteMatches(%q, %q) = %v", tt.route, tt.dashboard, got)
		}
	}
}

type recordingSurface struct {
	mu      sync.Mutex
	regions map[string]string
	notices []view.Notice
}

func (s *recordingSurface) Replace(_ context.Context, region, html string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.regions == nil {
		s.regions = make(map[string]string)
	}
	s.regions[region] = html
	return nil
}

func (s *recordingSurface) Notify(_ context.Context, n view.Notice) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notices = append(s.notices, n)
	return nil
}

func TestFlowViewPollsOnlyOnDashboardRoute(t *testing.T) {
	src := newFakeSource()
	v := NewFlowView(src, "flow_diagram", nil, Options{})

	if err := v.Mount(context.Background(), view.Params{Route: "/app/facebook-messages"}, &recordingSurface{}); err != nil {
		t.Fatalf("Mount: %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	if src.count() != 0 || v.Poller() != nil {
		t.Errorf("expected no polling off route, got %d fetches", src.count())
	}
	v.Teardown()
}

func TestFlowViewTeardownStopsPoller(t *testing.T) {
	src := newFakeSource()
	tick, _, _ := manualTicks()
	v := NewFlowView(src, "flow_diagram", nil, Options{Tick: tick})
	surface := &recordingSurface{}

	params := view.Params{Route: "/flow_diagram", Query: url.Values{}}
	if err := v.Mount(context.Background(), params, surface); err != nil {
		t.Fatalf("Mount: %v", err)
	}
	waitFetch(t, src)

	rendered := func() bool {
		surface.mu.Lock()
		defer surface.mu.Unlock()
		return surface.regions[RegionWebhooks] != "" && surface.regions[RegionActivity] != ""
	}
	deadline := time.Now().Add(2 * time.Second)
	for !rendered() && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if !rendered() {
		t.Fatal("expected both regions rendered")
	}

	v.Teardown()
	if v.Poller().State() != StateStopped {
		t.Errorf("expected stopped poller, got %v", v.Poller().State())
	}
	if src.count() != 1 {
		t.Errorf("expected a single fetch, got %d", src.count())
	}
}

func TestFlowViewRefusesWorkAfterTeardown(t *testing.T) {
	src := newFakeSource()
	v := NewFlowView(src, "flow_diagram", nil, Options{})
	v.Teardown()

	ctx := context.Background()
	if err := v.Handle(ctx, view.Command{Type: "refresh"}); !errors.Is(err, view.ErrClosed) {
		t.Errorf("Handle: expected ErrClosed, got %v", err)
	}
	if err := v.Mount(ctx, view.Params{Route: "/flow_diagram"}, &recordingSurface{}); !errors.Is(err, view.ErrClosed) {
		t.Errorf("Mount: expected ErrClosed, got %v", err)
	}
	if v.Poller() != nil || src.count() != 0 {
		t.Errorf("torn down view started polling: %d fetches", src.count())
	}
}
