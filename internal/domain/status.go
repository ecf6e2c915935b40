package domain

import "time"

// WebhookStatus reports whether an account received webhook traffic in the last hour.
type WebhookStatus struct {
	AccountName   string `json:"account_name"`
	WebhookActive bool   `json:"webhook_active"`
}

// RecentActivity holds today's counters.
type RecentActivity struct {
	LeadsToday    int `json:"leads_today"`
	MessagesToday int `json:"messages_today"`
	OrdersToday   int `json:"orders_today"`
}

// SyncStatus describes scheduled sync backlog.
type SyncStatus struct {
	LastInsightsSync time.Time `json:"last_insights_sync,omitzero"`
	PendingLeads     int       `json:"pending_leads"`
	PendingOrders    int       `json:"pending_orders"`
}

// StatusSnapshot is a point-in-time read of connectivity flags and counters.
// It is never cached beyond the render it feeds.
type StatusSnapshot struct {
	WebhookStatus  []WebhookStatus `json:"webhook_status"`
	RecentActivity RecentActivity  `json:"recent_activity"`
	SyncStatus     *SyncStatus     `json:"sync_status,omitempty"`
	ErrorCount     int             `json:"error_summary"`
	FetchedAt      time.Time       `json:"fetched_at"`
}
