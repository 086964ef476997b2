package models

// BannerState is the agent-facing unread banner for one conversation.
// It is deliberately decoupled from backend read receipts: only the agent's
// own outbound send (or a full reload of the view) resets it.
type BannerState struct {
	UnreadCount int  `json:"bannerUnreadCount"`
	HasReplied  bool `json:"hasRepliedToUnread"`
}
