// Package inbox rebuilds Messenger conversations from the flat message list
// returned by the backend and hosts the inbox view.
package inbox

import (
	"fmt"

	"github.com/ashureev/pagedesk/internal/domain"
)

// Summarize groups messages into one summary per correspondent.
//
// The input must already be ordered newest first: no sorting happens here, the
// first message seen for a correspondent becomes its summary and later ones are
// dropped from the list (they remain part of the transcript). Summaries come
// out in first-seen order. A message with an unknown direction fails the call.
func Summarize(messages []domain.Message) ([]domain.ConversationSummary, error) {
	summaries := make([]domain.ConversationSummary, 0)
	seen := make(map[string]struct{}, len(messages))

	for i, msg := range messages {
		id, err := msg.CorrespondentID()
		if err != nil {
			return nil, fmt.Errorf("summarize message %d: %w", i, err)
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}

		name := msg.SenderName
		if name == "" {
			name = id
		}
		summaries = append(summaries, domain.ConversationSummary{
			CorrespondentID:    id,
			DisplayName:        name,
			LastMessagePreview: msg.Content,
			LastActivityAt:     msg.Timestamp(),
		})
	}

	return summaries, nil
}

// Transcript returns a copy of one correspondent's messages in the order the
// backend supplied them, which is oldest first. Filtering by correspondent
// happens in the backend query.
func Transcript(messages []domain.Message) []domain.Message {
	out := make([]domain.Message, len(messages))
	copy(out, messages)
	return out
}
