package status

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	"github.com/ashureev/pagedesk/internal/domain"
	"github.com/ashureev/pagedesk/internal/events"
	"github.com/ashureev/pagedesk/internal/remote"
	"github.com/ashureev/pagedesk/internal/view"
)

// PollAlert is the payload of the poll degraded and recovered events.
type PollAlert struct {
	UserID      string `json:"user_id,omitempty"`
	Consecutive int    `json:"consecutive,omitempty"`
	Error       string `json:"error,omitempty"`
}

// publishingRenderer forwards streak changes to the event bus.
type publishingRenderer struct {
	Renderer
	publisher events.Publisher
	userID    string
	logger    *slog.Logger
}

func (r *publishingRenderer) ReportFailure(ctx context.Context, err error, consecutive int) {
	r.Renderer.ReportFailure(ctx, err, consecutive)
	events.PublishAsync(r.publisher, events.TypePollDegraded, PollAlert{
		UserID:      r.userID,
		Consecutive: consecutive,
		Error:       err.Error(),
	}, r.logger)
}

func (r *publishingRenderer) ClearFailure(ctx context.Context) {
	r.Renderer.ClearFailure(ctx)
	events.PublishAsync(r.publisher, events.TypePollRecovered, PollAlert{UserID: r.userID}, r.logger)
}

// FlowView is the live flow dashboard. It polls only when mounted on the
// dashboard route and stops polling on teardown.
type FlowView struct {
	source         remote.StatusSource
	opts           Options
	dashboardRoute string
	publisher      events.Publisher

	mu     sync.Mutex
	poller *Poller
	closed bool
}

var _ view.View = (*FlowView)(nil)

// NewFlowView creates an unmounted flow dashboard view.
func NewFlowView(source remote.StatusSource, dashboardRoute string, publisher events.Publisher, opts Options) *FlowView {
	if publisher == nil {
		publisher = events.Nop{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &FlowView{
		source:         source,
		opts:           opts,
		dashboardRoute: dashboardRoute,
		publisher:      publisher,
	}
}

// Mount starts the poller when the route matches the dashboard.
func (v *FlowView) Mount(ctx context.Context, p view.Params, s view.Surface) error {
	v.mu.Lock()
	closed := v.closed
	v.mu.Unlock()
	if closed {
		return view.ErrClosed
	}
	if !RouteMatches(p.Route, v.dashboardRoute) {
		v.opts.Logger.Debug("Flow view mounted off the dashboard route, not polling", "route", p.Route)
		return nil
	}

	renderer := &publishingRenderer{
		Renderer:  &SurfaceRenderer{Surface: s, Logger: v.opts.Logger},
		publisher: v.publisher,
		userID:    p.UserID,
		logger:    v.opts.Logger,
	}
	poller := NewPoller(v.source, renderer, v.opts)

	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return view.ErrClosed
	}
	if v.poller != nil {
		return nil
	}
	v.poller = poller
	poller.Start(ctx)
	return nil
}

// Handle supports "refresh", which fetches immediately.
func (v *FlowView) Handle(_ context.Context, cmd view.Command) error {
	v.mu.Lock()
	closed, p := v.closed, v.poller
	v.mu.Unlock()
	if closed {
		return view.ErrClosed
	}
	if cmd.Type != "refresh" {
		return fmt.Errorf("unknown flow command %q", cmd.Type)
	}
	if p != nil {
		p.Refresh()
	}
	return nil
}

// Teardown stops the poller and waits for it to exit.
func (v *FlowView) Teardown() {
	v.mu.Lock()
	v.closed = true
	p := v.poller
	v.mu.Unlock()

	if p != nil {
		p.Stop()
	}
}

// Poller returns the running poller, or nil when the view is not polling.
func (v *FlowView) Poller() *Poller {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.poller
}

// DashboardSource is the part of the backend the stats dashboard needs.
type DashboardSource interface {
	GetDashboardData(ctx context.Context, account string, days int) (*domain.DashboardData, error)
}

const defaultDashboardDays = 30

// DashboardView renders headline stats on mount and on request.
type DashboardView struct {
	source DashboardSource
	logger *slog.Logger

	mu      sync.Mutex
	account string
	days    int
	surface view.Surface
	closed  bool
}

var _ view.View = (*DashboardView)(nil)

// NewDashboardView creates an unmounted stats dashboard.
func NewDashboardView(source DashboardSource, logger *slog.Logger) *DashboardView {
	if logger == nil {
		logger = slog.Default()
	}
	return &DashboardView{source: source, logger: logger, days: defaultDashboardDays}
}

// Mount reads the optional account and days query parameters and renders.
func (v *DashboardView) Mount(ctx context.Context, p view.Params, s view.Surface) error {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return view.ErrClosed
	}
	v.surface = s
	if p.Query != nil {
		v.account = p.Query.Get("account")
		if d, err := strconv.Atoi(p.Query.Get("days")); err == nil && d > 0 {
			v.days = d
		}
	}
	v.mu.Unlock()
	return v.refresh(ctx)
}

// Handle supports "refresh" and "set_account".
func (v *DashboardView) Handle(ctx context.Context, cmd view.Command) error {
	v.mu.Lock()
	closed := v.closed
	v.mu.Unlock()
	if closed {
		return view.ErrClosed
	}

	switch cmd.Type {
	case "set_account":
		v.mu.Lock()
		v.account = cmd.Account
		v.mu.Unlock()
	case "refresh":
	default:
		return fmt.Errorf("unknown dashboard command %q", cmd.Type)
	}

	err := v.refresh(ctx)
	if err != nil {
		if s := v.currentSurface(); s != nil {
			if notifyErr := s.Notify(ctx, view.Notice{Level: view.LevelError, Message: err.Error()}); notifyErr != nil {
				v.logger.Debug("Failed to send notice", "error", notifyErr)
			}
		}
	}
	return err
}

// Teardown detaches the view.
func (v *DashboardView) Teardown() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.closed = true
	v.surface = nil
}

func (v *DashboardView) currentSurface() view.Surface {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.surface
}

func (v *DashboardView) refresh(ctx context.Context) error {
	v.mu.Lock()
	account, days := v.account, v.days
	v.mu.Unlock()

	data, err := v.source.GetDashboardData(ctx, account, days)
	if err != nil {
		return fmt.Errorf("load dashboard: %w", err)
	}
	html, err := RenderDashboard(data)
	if err != nil {
		return err
	}
	if s := v.currentSurface(); s != nil {
		return s.Replace(ctx, RegionDashboard, html)
	}
	return nil
}
