package service

import (
	"context"
	"fmt"
	"sync"

	"chatdesk/internal/metrics"
	"chatdesk/internal/models"

	"github.com/sirupsen/logrus"
)

// PushSource is the event stream the consumer drains. Satisfied by the
// websocket push feed.
type PushSource interface {
	Events() <-chan models.PushEnvelope
}

// SessionLookup resolves the live session for a conversation.
type SessionLookup interface {
	Get(conversationID string) (*ConversationSession, bool)
}

// PushConsumer drains the push feed and routes each message to its open
// session. Messages for conversations without a live session are dropped;
// the server unread count covers them when the agent opens the view.
type PushConsumer struct {
	source   PushSource
	sessions SessionLookup
	logger   *logrus.Logger

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
	mu      sync.RWMutex
}

// NewPushConsumer creates a push consumer.
func NewPushConsumer(source PushSource, sessions SessionLookup, logger *logrus.Logger) *PushConsumer {
	return &PushConsumer{
		source:   source,
		sessions: sessions,
		logger:   logger,
	}
}

// Start begins draining the push feed in the background.
func (pc *PushConsumer) Start(ctx context.Context) error {
	pc.mu.Lock()
	defer pc.mu.Unlock()

	if pc.running {
		return fmt.Errorf("push consumer is already running")
	}

	pc.ctx, pc.cancel = context.WithCancel(ctx)
	pc.running = true

	pc.wg.Add(1)
	go pc.consumeLoop()

	pc.logger.Info("Push consumer started")
	return nil
}

// Stop gracefully stops the consumer.
func (pc *PushConsumer) Stop() {
	pc.mu.Lock()
	defer pc.mu.Unlock()

	if !pc.running {
		return
	}

	pc.logger.Info("Stopping push consumer...")
	pc.cancel()
	pc.wg.Wait()
	pc.running = false
	pc.logger.Info("Push consumer stopped")
}

// IsRunning returns whether the consumer is currently active.
func (pc *PushConsumer) IsRunning() bool {
	pc.mu.RLock()
	defer pc.mu.RUnlock()
	return pc.running
}

func (pc *PushConsumer) consumeLoop() {
	defer pc.wg.Done()

	for {
		select {
		case <-pc.ctx.Done():
			return
		case envelope, ok := <-pc.source.Events():
			if !ok {
				pc.logger.Warn("Push feed channel closed, consumer exiting")
				return
			}
			pc.handleEnvelope(envelope)
		}
	}
}

func (pc *PushConsumer) handleEnvelope(envelope models.PushEnvelope) {
	msg := envelope.Message
	if msg.ConversationID == "" {
		pc.logger.WithField(LogFieldEvent, envelope.Event).Warn("Dropping push envelope without conversation ID")
		metrics.IncrementCounter("push_envelopes_malformed_total", nil, "Push envelopes missing required fields")
		return
	}

	session, ok := pc.sessions.Get(msg.ConversationID)
	if !ok {
		metrics.IncrementCounter("push_envelopes_unrouted_total", nil, "Push envelopes for conversations without a session")
		pc.logger.WithFields(logrus.Fields{
			LogFieldEvent:          envelope.Event,
			LogFieldConversationID: SanitizeConversationID(msg.ConversationID),
		}).Debug("No open session for push envelope, dropping")
		return
	}

	outcome := session.HandlePush(pc.ctx, msg)
	pc.logger.WithFields(logrus.Fields{
		LogFieldEvent:          envelope.Event,
		LogFieldConversationID: SanitizeConversationID(msg.ConversationID),
		LogFieldMessageID:      SanitizeMessageID(msg.ID),
		LogFieldOutcome:        string(outcome),
	}).Debug("Routed push envelope")
}
