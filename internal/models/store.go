package models

import "time"

// ReadMarker records the newest message the agent has read in a conversation.
// It backs the read-state that survives console restarts; the banner unread
// counter is tracked separately and never derived from it.
type ReadMarker struct {
	ConversationID    string    `json:"conversationId"`
	LastReadMessageID string    `json:"lastReadMessageId"`
	ReadAt            time.Time `json:"readAt"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

// BannerSnapshot persists the divider counter state for a conversation so a
// reopened session can restore the banner without replaying history.
type BannerSnapshot struct {
	ConversationID string    `json:"conversationId"`
	UnreadCount    int       `json:"unreadCount"`
	HasReplied     bool      `json:"hasReplied"`
	UpdatedAt      time.Time `json:"updatedAt"`
}
