package models

import (
	"time"
)

type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

type SenderRole string

const (
	SenderCustomer SenderRole = "customer"
	SenderAgent    SenderRole = "agent"
	SenderSystem   SenderRole = "system"
	SenderAI       SenderRole = "ai"
)

type MessageStatus string

const (
	StatusSending   MessageStatus = "sending"
	StatusPending   MessageStatus = "pending"
	StatusSent      MessageStatus = "sent"
	StatusDelivered MessageStatus = "delivered"
	StatusRead      MessageStatus = "read"
	StatusFailed    MessageStatus = "failed"
)

// statusRank orders the outbound delivery pipeline. Failed is handled
// separately because it is terminal and reachable from any live state.
var statusRank = map[MessageStatus]int{
	StatusSending:   0,
	StatusPending:   1,
	StatusSent:      2,
	StatusDelivered: 3,
	StatusRead:      4,
}

// CanTransitionTo reports whether moving from s to next respects the
// monotonic status pipeline: sending -> pending -> sent -> delivered -> read,
// with failed terminal once reached.
func (s MessageStatus) CanTransitionTo(next MessageStatus) bool {
	if s == StatusFailed {
		return false
	}
	if next == StatusFailed {
		return true
	}
	currentRank, ok := statusRank[s]
	if !ok {
		return false
	}
	nextRank, ok := statusRank[next]
	if !ok {
		return false
	}
	return nextRank >= currentRank
}

// IsTerminal reports whether no further status transitions are possible.
func (s MessageStatus) IsTerminal() bool {
	return s == StatusFailed || s == StatusRead
}

type MessageType string

const (
	TextMessage     MessageType = "text"
	ImageMessage    MessageType = "image"
	DocumentMessage MessageType = "document"
	VoiceMessage    MessageType = "voice"
)

// MediaContent carries the typed payload for non-text messages.
type MediaContent struct {
	URL      string `json:"url"`
	MimeType string `json:"mimeType"`
	Filename string `json:"filename,omitempty"`
	Caption  string `json:"caption,omitempty"`
}

// Message is a single conversation entry. Confirmed messages are immutable
// except for the status/receipt fields; provisional messages carry a
// client-generated ID until the backend confirms them.
type Message struct {
	ID               string        `json:"id"`
	ConversationID   string        `json:"conversationId"`
	Direction        Direction     `json:"direction"`
	SenderRole       SenderRole    `json:"senderRole"`
	Status           MessageStatus `json:"status"`
	Type             MessageType   `json:"type"`
	TextContent      string        `json:"textContent,omitempty"`
	Media            *MediaContent `json:"media,omitempty"`
	CorrelationToken string        `json:"correlationToken,omitempty"`
	Provisional      bool          `json:"provisional,omitempty"`
	Timestamp        time.Time     `json:"timestamp"`
	SentAt           *time.Time    `json:"sentAt,omitempty"`
	DeliveredAt      *time.Time    `json:"deliveredAt,omitempty"`
	ReadAt           *time.Time    `json:"readAt,omitempty"`
}

// SendPayload is what the agent submits; the tracker turns it into a
// provisional Message before the backend ever sees it.
type SendPayload struct {
	Type        MessageType   `json:"type"`
	TextContent string        `json:"textContent,omitempty"`
	Media       *MediaContent `json:"media,omitempty"`
}

// MessagePage is one page of backward-paginated conversation history.
type MessagePage struct {
	Messages   []Message `json:"messages"`
	NextCursor string    `json:"nextCursor,omitempty"`
	HasMore    bool      `json:"hasMore"`
}
