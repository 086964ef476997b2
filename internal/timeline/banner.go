package timeline

import (
	"chatdesk/internal/models"
)

// BannerTracker maintains the banner unread counter for one conversation.
// It is deliberately decoupled from backend read receipts: markAsRead, read
// receipts and scrolling never touch it. Only the agent's own outbound send
// or a full reload of the view (which rebuilds the tracker from server
// state) resets it.
type BannerTracker struct {
	unread     int
	hasReplied bool
}

// NewBannerTracker seeds the counter from the server-side unread count when
// a conversation view opens.
func NewBannerTracker(initialUnread int) *BannerTracker {
	if initialUnread < 0 {
		initialUnread = 0
	}
	return &BannerTracker{
		unread:     initialUnread,
		hasReplied: initialUnread == 0,
	}
}

// RecordInbound bumps the counter for a newly arrived inbound message.
// Any inbound arrival means there is again something the agent has not
// replied to.
func (b *BannerTracker) RecordInbound() {
	b.unread++
	b.hasReplied = false
}

// RecordAgentReply resets the banner the moment the agent's own outbound
// message is appended to the timeline. The send attempt counts as a reply
// regardless of its eventual delivery status.
func (b *BannerTracker) RecordAgentReply() {
	b.unread = 0
	b.hasReplied = true
}

// State returns the current banner snapshot.
func (b *BannerTracker) State() models.BannerState {
	return models.BannerState{
		UnreadCount: b.unread,
		HasReplied:  b.hasReplied,
	}
}
