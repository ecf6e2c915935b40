package status

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html/template"
	"log/slog"
	"time"

	"github.com/ashureev/pagedesk/internal/domain"
	"github.com/ashureev/pagedesk/internal/view"
)

// Regions rendered by the flow dashboard.
const (
	RegionWebhooks  = "webhook-status"
	RegionActivity  = "activity-status"
	RegionDashboard = "dashboard-stats"
)

// failureNoticeKey ties the sticky failure notice to its later clearance.
const failureNoticeKey = "status-poll"

var templates = template.Must(template.New("status").Funcs(template.FuncMap{
	"when": func(t time.Time) string {
		if t.IsZero() {
			return "never"
		}
		return t.Format("2006-01-02 15:04")
	},
	"money": func(v float64) string { return fmt.Sprintf("%.2f", v) },
	"pct":   func(v float64) string { return fmt.Sprintf("%.1f%%", v) },
}).Parse(`
{{define "webhooks"}}<h4>Webhook Status</h4>
<div class="status-grid">{{range .}}
	<div class="status-item {{if .WebhookActive}}active{{else}}inactive{{end}}">
		<strong>{{.AccountName}}</strong>
		<span>{{if .WebhookActive}}Active{{else}}Inactive{{end}}</span>
	</div>{{else}}
	<div class="status-item text-muted">No accounts configured</div>{{end}}
</div>{{end}}

{{define "activity"}}<h4>Today's Activity</h4>
<div class="activity-grid">
	<div class="activity-item"><span class="count">{{.RecentActivity.LeadsToday}}</span><span class="label">Leads</span></div>
	<div class="activity-item"><span class="count">{{.RecentActivity.MessagesToday}}</span><span class="label">Messages</span></div>
	<div class="activity-item"><span class="count">{{.RecentActivity.OrdersToday}}</span><span class="label">Orders</span></div>
</div>{{with .SyncStatus}}
<div class="sync-status small text-muted">
	<span>Last insights sync: {{when .LastInsightsSync}}</span>
	<span>Pending leads: {{.PendingLeads}}</span>
	<span>Pending orders: {{.PendingOrders}}</span>
</div>{{end}}{{if .ErrorCount}}
<div class="error-summary text-danger small">{{.ErrorCount}} errors today</div>{{end}}{{end}}

{{define "dashboard"}}<div class="stats-grid">
	<div class="stat"><span class="value">{{.Stats.TotalLeads}}</span><span class="label">Total Leads</span></div>
	<div class="stat"><span class="value">{{.Stats.TotalMessages}}</span><span class="label">Messages</span></div>
	<div class="stat"><span class="value">{{.Stats.TotalOrders}}</span><span class="label">Orders</span></div>
	<div class="stat"><span class="value">{{money .Stats.TotalSpend}}</span><span class="label">Ad Spend</span></div>
	<div class="stat"><span class="value">{{pct .Stats.ConversionRate}}</span><span class="label">Conversion Rate</span></div>
	<div class="stat"><span class="value">{{pct .Stats.ROI}}</span><span class="label">ROI</span></div>
</div>
<div class="charts" data-series="{{.Series}}"></div>{{end}}
`))

func execute(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return buf.String(), nil
}

// RenderWebhooks renders the per-account webhook indicators in backend order.
func RenderWebhooks(snap *domain.StatusSnapshot) (string, error) {
	return execute("webhooks", snap.WebhookStatus)
}

// RenderActivity renders today's counters.
func RenderActivity(snap *domain.StatusSnapshot) (string, error) {
	return execute("activity", snap)
}

// RenderDashboard renders headline stats. Chart series are embedded as JSON
// for the shell's charting code.
func RenderDashboard(data *domain.DashboardData) (string, error) {
	series, err := json.Marshal(data.Charts)
	if err != nil {
		return "", fmt.Errorf("encode chart series: %w", err)
	}
	return execute("dashboard", struct {
		Stats  domain.DashboardStats
		Series string
	}{data.Stats, string(series)})
}

// SurfaceRenderer draws snapshots onto a view surface.
type SurfaceRenderer struct {
	Surface view.Surface
	Logger  *slog.Logger
}

var _ Renderer = (*SurfaceRenderer)(nil)

// Render replaces both status regions. Nothing is written unless both render.
func (r *SurfaceRenderer) Render(ctx context.Context, snap *domain.StatusSnapshot) error {
	webhooks, err := RenderWebhooks(snap)
	if err != nil {
		return err
	}
	activity, err := RenderActivity(snap)
	if err != nil {
		return err
	}
	if err := r.Surface.Replace(ctx, RegionWebhooks, webhooks); err != nil {
		return err
	}
	return r.Surface.Replace(ctx, RegionActivity, activity)
}

// ReportFailure shows a sticky warning until the poller recovers.
func (r *SurfaceRenderer) ReportFailure(ctx context.Context, err error, consecutive int) {
	r.notify(ctx, view.Notice{
		Level:   view.LevelWarning,
		Message: fmt.Sprintf("Live status unavailable after %d attempts: %v", consecutive, err),
		Sticky:  true,
		Key:     failureNoticeKey,
	})
}

// ClearFailure replaces the sticky warning.
func (r *SurfaceRenderer) ClearFailure(ctx context.Context) {
	r.notify(ctx, view.Notice{
		Level:   view.LevelSuccess,
		Message: "Live status restored",
		Key:     failureNoticeKey,
	})
}

func (r *SurfaceRenderer) notify(ctx context.Context, n view.Notice) {
	if err := r.Surface.Notify(ctx, n); err != nil {
		logger := r.Logger
		if logger == nil {
			logger = slog.Default()
		}
		logger.Debug("Failed to send notice", "key", n.Key, "error", err)
	}
}
