package service

import (
	"context"
	"sync"

	"chatdesk/internal/errors"
	"chatdesk/internal/metrics"
	"chatdesk/internal/validation"

	"github.com/sirupsen/logrus"
)

// SessionManager owns at most one live session per conversation. Opening an
// already open conversation returns the existing session; closing releases
// it so a later Open rebuilds everything from server state.
type SessionManager struct {
	deps   SessionDeps
	unread UnreadCounter
	logger *logrus.Logger

	mu       sync.RWMutex
	sessions map[string]*ConversationSession
}

// NewSessionManager creates a session manager.
func NewSessionManager(deps SessionDeps, unread UnreadCounter) *SessionManager {
	return &SessionManager{
		deps:     deps,
		unread:   unread,
		logger:   deps.Logger,
		sessions: make(map[string]*ConversationSession),
	}
}

// Open returns the live session for a conversation, creating it on first
// use. A new session seeds its divider counter from the server unread count
// (falling back to the local snapshot) and loads the newest history page.
func (sm *SessionManager) Open(ctx context.Context, conversationID string) (*ConversationSession, error) {
	if err := validation.ValidateConversationID(conversationID); err != nil {
		return nil, err
	}

	sm.mu.RLock()
	if session, ok := sm.sessions[conversationID]; ok {
		sm.mu.RUnlock()
		return session, nil
	}
	sm.mu.RUnlock()

	initialUnread := sm.seedUnread(ctx, conversationID)
	session := newConversationSession(conversationID, initialUnread, sm.deps)

	if _, err := session.LoadOlderPage(ctx); err != nil {
		session.Close()
		return nil, err
	}

	sm.mu.Lock()
	if existing, ok := sm.sessions[conversationID]; ok {
		// Lost the race to a concurrent Open; keep the winner
		sm.mu.Unlock()
		session.Close()
		return existing, nil
	}
	sm.sessions[conversationID] = session
	open := len(sm.sessions)
	sm.mu.Unlock()

	metrics.SetGauge("open_sessions", float64(open), nil, "Open conversation sessions")
	sm.logger.WithFields(logrus.Fields{
		LogFieldConversationID: SanitizeConversationID(conversationID),
		"initial_unread":       initialUnread,
	}).Info("Conversation session opened")

	return session, nil
}

// Get returns the live session for a conversation, if open.
func (sm *SessionManager) Get(conversationID string) (*ConversationSession, bool) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	session, ok := sm.sessions[conversationID]
	return session, ok
}

// Close terminates and releases the session for a conversation.
func (sm *SessionManager) Close(conversationID string) error {
	sm.mu.Lock()
	session, ok := sm.sessions[conversationID]
	if ok {
		delete(sm.sessions, conversationID)
	}
	open := len(sm.sessions)
	sm.mu.Unlock()

	if !ok {
		return errors.NewNotFoundError("session", conversationID)
	}

	session.Close()
	metrics.SetGauge("open_sessions", float64(open), nil, "Open conversation sessions")
	sm.logger.WithField(LogFieldConversationID,
		SanitizeConversationID(conversationID)).Info("Conversation session closed")
	return nil
}

// CloseAll terminates every live session. Used during shutdown.
func (sm *SessionManager) CloseAll() {
	sm.mu.Lock()
	sessions := sm.sessions
	sm.sessions = make(map[string]*ConversationSession)
	sm.mu.Unlock()

	for _, session := range sessions {
		session.Close()
	}
	metrics.SetGauge("open_sessions", 0, nil, "Open conversation sessions")
}

// seedUnread resolves the initial divider count: server truth first, local
// snapshot as fallback, zero when neither is reachable.
func (sm *SessionManager) seedUnread(ctx context.Context, conversationID string) int {
	if sm.unread != nil {
		if count, err := sm.unread.GetUnreadCount(ctx, conversationID); err == nil {
			return count
		} else {
			sm.logger.WithError(err).WithField(LogFieldConversationID,
				SanitizeConversationID(conversationID)).Warn("Failed to fetch unread count, trying local snapshot")
		}
	}

	if sm.deps.State != nil {
		if snapshot, err := sm.deps.State.GetBannerSnapshot(ctx, conversationID); err == nil && snapshot != nil {
			return snapshot.UnreadCount
		}
	}
	return 0
}
