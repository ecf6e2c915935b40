package domain

import "time"

// ConversationSummary is one row of the inbox list. It is rebuilt on every load.
type ConversationSummary struct {
	CorrespondentID    string    `json:"correspondent_id"`
	DisplayName        string    `json:"display_name"`
	LastMessagePreview string    `json:"last_message_preview"`
	LastActivityAt     time.Time `json:"last_activity_at"`
}
