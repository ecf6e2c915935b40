// Package remote is the typed boundary to the integration backend.
// Responses are validated here and turned into domain values or errors.
package remote

import (
	"context"

	"github.com/ashureev/pagedesk/internal/domain"
)

// Backend lists the whitelisted backend methods the desk relies on.
type Backend interface {
	StatusSource

	// GetMessages returns the latest messages, newest first. An empty account means all accounts.
	GetMessages(ctx context.Context, account string, limit int) ([]domain.Message, error)

	// GetConversation returns the thread with one correspondent, oldest first.
	GetConversation(ctx context.Context, correspondentID, account string) ([]domain.Message, error)

	// SendMessage sends a text message to a correspondent through the account's page.
	SendMessage(ctx context.Context, account, correspondentID, text string) (*SendReceipt, error)

	// GetDashboardData returns headline stats and chart series for the last days.
	GetDashboardData(ctx context.Context, account string, days int) (*domain.DashboardData, error)

	// ListAccounts returns the accounts with Messenger enabled.
	ListAccounts(ctx context.Context) ([]domain.Account, error)

	// SyncLeads pulls new lead-ad submissions for an account.
	SyncLeads(ctx context.Context, account string) (*ActionOutcome, error)

	// PullInsights pulls campaign insights.
	PullInsights(ctx context.Context) (*ActionOutcome, error)

	// TestConnection checks the backend's credentials against the platform.
	TestConnection(ctx context.Context) (*ActionOutcome, error)

	// RefreshToken exchanges the platform access token for a fresh one.
	RefreshToken(ctx context.Context) (*ActionOutcome, error)

	// GetOverview returns message and lead counters for the overview page.
	GetOverview(ctx context.Context) (*domain.Overview, error)

	// UnmappedLeads lists lead submissions not yet mapped to a CRM lead, newest first.
	UnmappedLeads(ctx context.Context, account string, limit int) ([]Record, error)

	// ListRecords lists generic records (settings, log entries) of a doctype.
	ListRecords(ctx context.Context, q RecordQuery) ([]Record, error)

	// GetRecord fetches one generic record.
	GetRecord(ctx context.Context, doctype, name string) (Record, error)
}

// StatusSource produces status snapshots for the live poller.
type StatusSource interface {
	GetFlowStatus(ctx context.Context) (*domain.StatusSnapshot, error)
}

// SendReceipt is returned by a successful send.
type SendReceipt struct {
	MessageID   string `json:"message_id"`
	RecipientID string `json:"recipient_id"`
}

// ActionOutcome is the result of a user-triggered backend action.
type ActionOutcome struct {
	Message   string `json:"message,omitempty"`
	Processed int    `json:"processed,omitempty"`
}

// Record is a generic backend document.
type Record map[string]any

// RecordQuery selects generic records.
type RecordQuery struct {
	Doctype string
	Filters map[string]any
	Fields  []string
	OrderBy string
	Limit   int
}
