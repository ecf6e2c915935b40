package domain

import (
	"fmt"
	"time"
)

// Direction tells which side of the page a message travelled.
type Direction string

const (
	// DirectionIncoming is a message sent by the correspondent to the page.
	DirectionIncoming Direction = "incoming"
	// DirectionOutgoing is a message sent by the page to the correspondent.
	DirectionOutgoing Direction = "outgoing"
)

// Valid reports whether d is one of the known directions.
func (d Direction) Valid() bool {
	return d == DirectionIncoming || d == DirectionOutgoing
}

// ParseDirection validates a raw direction value.
func ParseDirection(raw string) (Direction, error) {
	d := Direction(raw)
	if !d.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownDirection, raw)
	}
	return d, nil
}

// Message is a single Messenger entry as returned by the backend.
type Message struct {
	MessageID   string    `json:"message_id,omitempty"`
	Account     string    `json:"account,omitempty"`
	Direction   Direction `json:"direction"`
	SenderID    string    `json:"sender_id"`
	RecipientID string    `json:"recipient_id"`
	SenderName  string    `json:"sender_name,omitempty"`
	Content     string    `json:"content"`
	MessageType string    `json:"message_type,omitempty"`
	Status      string    `json:"status,omitempty"`
	MediaURL    string    `json:"media_url,omitempty"`
	SentAt      time.Time `json:"sent_at,omitzero"`
	ReceivedAt  time.Time `json:"received_at,omitzero"`
}

// Timestamp returns ReceivedAt when set, otherwise SentAt.
func (m Message) Timestamp() time.Time {
	if !m.ReceivedAt.IsZero() {
		return m.ReceivedAt
	}
	return m.SentAt
}

// CorrespondentID returns the identifier of the party on the other side of the page.
func (m Message) CorrespondentID() (string, error) {
	switch m.Direction {
	case DirectionIncoming:
		return m.SenderID, nil
	case DirectionOutgoing:
		return m.RecipientID, nil
	default:
		return "", fmt.Errorf("%w: %q (message %q)", ErrUnknownDirection, string(m.Direction), m.MessageID)
	}
}

// IsOutgoing reports whether the page sent the message.
func (m Message) IsOutgoing() bool {
	return m.Direction == DirectionOutgoing
}
