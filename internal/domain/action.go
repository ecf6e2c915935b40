package domain

import "time"

// ActionKind names a user-triggered action relayed to the backend.
type ActionKind string

const (
	ActionSendMessage    ActionKind = "send_message"
	ActionSyncLeads      ActionKind = "sync_leads"
	ActionPullInsights   ActionKind = "pull_insights"
	ActionTestConnection ActionKind = "test_connection"
	ActionRefreshToken   ActionKind = "refresh_token"
)

// ActionRecord is one entry of the operator audit trail.
type ActionRecord struct {
	ID        string     `json:"id"`
	UserID    string     `json:"user_id"`
	Kind      ActionKind `json:"kind"`
	Account   string     `json:"account,omitempty"`
	Target    string     `json:"target,omitempty"`
	OK        bool       `json:"ok"`
	Detail    string     `json:"detail,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}
