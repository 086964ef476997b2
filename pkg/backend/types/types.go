// Package types defines the wire format of the support-platform REST API.
package types

import (
	"time"

	"chatdesk/internal/models"
)

// APIMessage is a message as the backend serializes it. The backend calls
// the optimistic-send correlation token clientTempId; it is echoed back
// verbatim on the confirmation response and on push deliveries.
type APIMessage struct {
	ID             string               `json:"id"`
	ConversationID string               `json:"conversationId"`
	Direction      string               `json:"direction"`
	SenderRole     string               `json:"senderRole"`
	Status         string               `json:"status"`
	Type           string               `json:"type"`
	Text           string               `json:"text,omitempty"`
	Media          *models.MediaContent `json:"media,omitempty"`
	ClientTempID   string               `json:"clientTempId,omitempty"`
	Timestamp      time.Time            `json:"timestamp"`
	SentAt         *time.Time           `json:"sentAt,omitempty"`
	DeliveredAt    *time.Time           `json:"deliveredAt,omitempty"`
	ReadAt         *time.Time           `json:"readAt,omitempty"`
}

// ToModel converts a wire message into the internal representation.
func (m APIMessage) ToModel() models.Message {
	return models.Message{
		ID:               m.ID,
		ConversationID:   m.ConversationID,
		Direction:        models.Direction(m.Direction),
		SenderRole:       models.SenderRole(m.SenderRole),
		Status:           models.MessageStatus(m.Status),
		Type:             models.MessageType(m.Type),
		TextContent:      m.Text,
		Media:            m.Media,
		CorrelationToken: m.ClientTempID,
		Timestamp:        m.Timestamp,
		SentAt:           m.SentAt,
		DeliveredAt:      m.DeliveredAt,
		ReadAt:           m.ReadAt,
	}
}

// PageResponse is one page of backward-paginated history, newest page first.
type PageResponse struct {
	Messages   []APIMessage `json:"messages"`
	NextCursor string       `json:"nextCursor,omitempty"`
	HasMore    bool         `json:"hasMore"`
}

// ToModel converts a wire page into the internal representation.
func (p PageResponse) ToModel() *models.MessagePage {
	page := &models.MessagePage{
		Messages:   make([]models.Message, 0, len(p.Messages)),
		NextCursor: p.NextCursor,
		HasMore:    p.HasMore,
	}
	for _, m := range p.Messages {
		page.Messages = append(page.Messages, m.ToModel())
	}
	return page
}

// SendRequest is the outbound-send body. ClientTempID must be echoed back
// by the backend on the confirmation.
type SendRequest struct {
	ClientTempID string               `json:"clientTempId"`
	Type         string               `json:"type"`
	Text         string               `json:"text,omitempty"`
	Media        *models.MediaContent `json:"media,omitempty"`
}

// MarkReadRequest marks everything up to and including MessageID as read.
type MarkReadRequest struct {
	MessageID string `json:"messageId"`
}

// UnreadCountResponse is the backend's unread total for a conversation.
type UnreadCountResponse struct {
	Count int `json:"count"`
}

// ErrorResponse is the backend's error envelope.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
