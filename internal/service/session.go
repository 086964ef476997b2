package service

import (
	"context"
	"sync"
	"time"

	"chatdesk/internal/constants"
	"chatdesk/internal/errors"
	"chatdesk/internal/metrics"
	"chatdesk/internal/models"
	"chatdesk/internal/timeline"
	"chatdesk/internal/validation"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// PageFetcher loads one page of backward-paginated history.
type PageFetcher interface {
	FetchMessagePage(ctx context.Context, conversationID, cursor string, limit int) (*models.MessagePage, error)
}

// MessageSender submits an outbound message and returns the confirmed entry.
type MessageSender interface {
	SendMessage(ctx context.Context, conversationID, correlationToken string, payload models.SendPayload) (*models.Message, error)
}

// ReadMarker signals the backend read position. Fire-and-forget from the
// banner's point of view.
type ReadMarker interface {
	MarkAsRead(ctx context.Context, conversationID, messageID string) error
}

// UnreadCounter returns the server-side unread total for seeding the banner.
type UnreadCounter interface {
	GetUnreadCount(ctx context.Context, conversationID string) (int, error)
}

// StateStore persists per-conversation console state across restarts.
type StateStore interface {
	SaveReadMarker(ctx context.Context, marker *models.ReadMarker) error
	SaveBannerSnapshot(ctx context.Context, conversationID string, state models.BannerState) error
	GetBannerSnapshot(ctx context.Context, conversationID string) (*models.BannerSnapshot, error)
}

// View is a render-ready snapshot of one conversation: the ordered entries
// with their day banners, the divider state and whether older history exists.
type View struct {
	ConversationID string             `json:"conversationId"`
	Entries        []timeline.Entry   `json:"entries"`
	Banner         models.BannerState `json:"banner"`
	HasMoreHistory bool               `json:"hasMoreHistory"`
}

// ConversationSession owns the live reconciliation state for one open
// conversation. All mutations are serialized behind one mutex; network calls
// never run under it.
type ConversationSession struct {
	conversationID string

	fetcher PageFetcher
	sender  MessageSender
	reader  ReadMarker
	state   StateStore

	logger     *logrus.Logger
	classifier *timeline.Classifier

	mu          sync.Mutex
	store       *timeline.Store
	banner      *timeline.BannerTracker
	nextCursor  string
	hasMore     bool
	loadGen     int
	closed      bool
	subscribers []chan struct{}
}

// SessionDeps bundles the collaborators a session needs.
type SessionDeps struct {
	Fetcher    PageFetcher
	Sender     MessageSender
	Reader     ReadMarker
	State      StateStore
	Classifier *timeline.Classifier
	Logger     *logrus.Logger
}

func newConversationSession(conversationID string, initialUnread int, deps SessionDeps) *ConversationSession {
	return &ConversationSession{
		conversationID: conversationID,
		fetcher:        deps.Fetcher,
		sender:         deps.Sender,
		reader:         deps.Reader,
		state:          deps.State,
		classifier:     deps.Classifier,
		logger:         deps.Logger,
		store:          timeline.NewStore(conversationID),
		banner:         timeline.NewBannerTracker(initialUnread),
		hasMore:        true,
	}
}

func (cs *ConversationSession) ConversationID() string {
	return cs.conversationID
}

// Subscribe returns a channel that receives a signal whenever the view
// changes. The channel is closed when the session closes.
func (cs *ConversationSession) Subscribe() <-chan struct{} {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	ch := make(chan struct{}, 1)
	if cs.closed {
		close(ch)
		return ch
	}
	cs.subscribers = append(cs.subscribers, ch)
	return ch
}

// notifyLocked signals all subscribers without blocking. Callers hold cs.mu.
func (cs *ConversationSession) notifyLocked() {
	for _, ch := range cs.subscribers {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// LoadOlderPage fetches and merges the next page of older history. The merge
// is all-or-nothing: a failed fetch leaves the timeline untouched, and a
// page that lands after the session closed is discarded.
func (cs *ConversationSession) LoadOlderPage(ctx context.Context) (int, error) {
	cs.mu.Lock()
	if cs.closed {
		cs.mu.Unlock()
		return 0, errors.New(errors.ErrCodeSessionClosed, "session is closed").
			WithContext("conversation_id", cs.conversationID)
	}
	if !cs.hasMore {
		cs.mu.Unlock()
		return 0, nil
	}
	cursor := cs.nextCursor
	gen := cs.loadGen
	cs.mu.Unlock()

	start := time.Now()
	page, err := cs.fetcher.FetchMessagePage(ctx, cs.conversationID, cursor, constants.DefaultPageSize)
	metrics.RecordTimer("page_load_duration", time.Since(start), nil, "History page load duration")
	if err != nil {
		return 0, errors.NewFetchError(cs.conversationID, err)
	}

	cs.mu.Lock()
	defer cs.mu.Unlock()

	if cs.closed || cs.loadGen != gen {
		// The session closed or reloaded while the fetch was in flight
		return 0, nil
	}

	added := cs.store.MergeOlderPage(page.Messages)
	cs.nextCursor = page.NextCursor
	cs.hasMore = page.HasMore

	metrics.AddToCounter("history_messages_merged_total", float64(added), nil, "History messages merged into timelines")
	cs.logger.WithFields(logrus.Fields{
		LogFieldConversationID: SanitizeConversationID(cs.conversationID),
		LogFieldCount:          added,
		"has_more":             cs.hasMore,
	}).Debug("Merged older history page")

	if added > 0 {
		cs.notifyLocked()
	}
	return added, nil
}

// Send submits an outbound message. The provisional entry appears at the
// tail immediately and the divider resets at that moment, not when the
// backend confirms. On failure the entry stays visible, marked failed;
// resubmitting creates a fresh entry with a fresh token.
func (cs *ConversationSession) Send(ctx context.Context, payload models.SendPayload) (*models.Message, error) {
	if err := validation.ValidateSendPayload(payload); err != nil {
		return nil, err
	}

	token := uuid.NewString()
	provisional := models.Message{
		ID:               "local-" + token,
		ConversationID:   cs.conversationID,
		Direction:        models.DirectionOutbound,
		SenderRole:       models.SenderAgent,
		Status:           models.StatusSending,
		Type:             payload.Type,
		TextContent:      payload.TextContent,
		Media:            payload.Media,
		CorrelationToken: token,
		Provisional:      true,
		Timestamp:        time.Now().UTC(),
	}

	cs.mu.Lock()
	if cs.closed {
		cs.mu.Unlock()
		return nil, errors.New(errors.ErrCodeSessionClosed, "session is closed").
			WithContext("conversation_id", cs.conversationID)
	}
	cs.store.AppendProvisional(provisional)
	cs.banner.RecordAgentReply()
	bannerState := cs.banner.State()
	cs.notifyLocked()
	cs.mu.Unlock()

	cs.persistBannerSnapshot(ctx, bannerState)
	metrics.IncrementCounter("messages_sent_total", nil, "Outbound send attempts")

	confirmed, err := cs.sender.SendMessage(ctx, cs.conversationID, token, payload)

	cs.mu.Lock()
	defer cs.mu.Unlock()

	if err != nil {
		cs.store.FailProvisional(token)
		cs.notifyLocked()
		metrics.IncrementCounter("messages_send_failures_total", nil, "Outbound sends that failed")
		return nil, errors.NewSendError(cs.conversationID, token, err)
	}

	outcome := cs.store.AppendConfirmed(*confirmed)
	metrics.IncrementCounter("merge_outcomes_total", map[string]string{
		"source":  "confirm",
		"outcome": string(outcome),
	}, "Timeline merge outcomes by source")
	cs.notifyLocked()

	resolved, _ := cs.store.Get(confirmed.ID)
	return &resolved, nil
}

// HandlePush merges one push-delivered message. Inserted inbound messages
// bump the divider counter; acks and duplicates never do.
func (cs *ConversationSession) HandlePush(ctx context.Context, msg models.Message) timeline.MergeOutcome {
	cs.mu.Lock()
	if cs.closed {
		cs.mu.Unlock()
		return timeline.OutcomeDuplicateIgnored
	}

	if msg.Timestamp.IsZero() {
		// Renders without a day banner; see the classifier
		metrics.IncrementCounter("malformed_timestamps_total", nil, "Messages arriving without a usable timestamp")
	}

	outcome := cs.store.AppendPush(msg)

	var bannerState *models.BannerState
	if outcome == timeline.OutcomeInserted && msg.Direction == models.DirectionInbound {
		cs.banner.RecordInbound()
		state := cs.banner.State()
		bannerState = &state
	}
	if outcome != timeline.OutcomeDuplicateIgnored {
		cs.notifyLocked()
	}
	cs.mu.Unlock()

	metrics.IncrementCounter("merge_outcomes_total", map[string]string{
		"source":  "push",
		"outcome": string(outcome),
	}, "Timeline merge outcomes by source")
	LogMessageMerge(ctx, cs.logger, "push", cs.conversationID, msg.ID, string(outcome))

	if bannerState != nil {
		cs.persistBannerSnapshot(ctx, *bannerState)
	}
	return outcome
}

// View returns a render-ready snapshot of the conversation.
func (cs *ConversationSession) View() View {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	return View{
		ConversationID: cs.conversationID,
		Entries:        cs.classifier.Annotate(cs.store.Messages()),
		Banner:         cs.banner.State(),
		HasMoreHistory: cs.hasMore,
	}
}

// MarkRead tells the backend the agent has read up to the newest message.
// This feeds read receipts only; the divider counter is not touched.
func (cs *ConversationSession) MarkRead(ctx context.Context) error {
	cs.mu.Lock()
	if cs.closed {
		cs.mu.Unlock()
		return errors.New(errors.ErrCodeSessionClosed, "session is closed").
			WithContext("conversation_id", cs.conversationID)
	}
	messages := cs.store.Messages()
	cs.mu.Unlock()

	var newestID string
	for i := len(messages) - 1; i >= 0; i-- {
		if !messages[i].Provisional {
			newestID = messages[i].ID
			break
		}
	}
	if newestID == "" {
		return nil
	}

	if err := cs.reader.MarkAsRead(ctx, cs.conversationID, newestID); err != nil {
		return err
	}

	if cs.state != nil {
		marker := &models.ReadMarker{
			ConversationID:    cs.conversationID,
			LastReadMessageID: newestID,
			ReadAt:            time.Now().UTC(),
		}
		if err := cs.state.SaveReadMarker(ctx, marker); err != nil {
			cs.logger.WithError(err).WithField(LogFieldConversationID,
				SanitizeConversationID(cs.conversationID)).Warn("Failed to persist read marker")
		}
	}
	return nil
}

// Reload discards the local timeline and rebuilds it from server state.
// This is the full-reload path that also reseeds the divider counter.
func (cs *ConversationSession) Reload(ctx context.Context, unread UnreadCounter) error {
	cs.mu.Lock()
	if cs.closed {
		cs.mu.Unlock()
		return errors.New(errors.ErrCodeSessionClosed, "session is closed").
			WithContext("conversation_id", cs.conversationID)
	}
	cs.loadGen++
	cs.mu.Unlock()

	page, err := cs.fetcher.FetchMessagePage(ctx, cs.conversationID, "", constants.DefaultPageSize)
	if err != nil {
		return errors.NewFetchError(cs.conversationID, err)
	}

	count := 0
	if unread != nil {
		if count, err = unread.GetUnreadCount(ctx, cs.conversationID); err != nil {
			cs.logger.WithError(err).Warn("Failed to fetch unread count on reload, keeping zero")
			count = 0
		}
	}

	cs.mu.Lock()
	defer cs.mu.Unlock()
	if cs.closed {
		return nil
	}

	cs.store = timeline.NewStore(cs.conversationID)
	cs.store.MergeOlderPage(page.Messages)
	cs.banner = timeline.NewBannerTracker(count)
	cs.nextCursor = page.NextCursor
	cs.hasMore = page.HasMore
	cs.notifyLocked()
	return nil
}

// Close terminates the session. In-flight page loads started before Close
// are discarded when they land.
func (cs *ConversationSession) Close() {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	if cs.closed {
		return
	}
	cs.closed = true
	cs.loadGen++
	for _, ch := range cs.subscribers {
		close(ch)
	}
	cs.subscribers = nil
}

func (cs *ConversationSession) persistBannerSnapshot(ctx context.Context, state models.BannerState) {
	if cs.state == nil {
		return
	}
	if err := cs.state.SaveBannerSnapshot(ctx, cs.conversationID, state); err != nil {
		cs.logger.WithError(err).WithField(LogFieldConversationID,
			SanitizeConversationID(cs.conversationID)).Warn("Failed to persist banner snapshot")
	}
}
