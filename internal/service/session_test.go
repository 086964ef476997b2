package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"chatdesk/internal/errors"
	"chatdesk/internal/models"
	"chatdesk/internal/timeline"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func testClassifier(t *testing.T) *timeline.Classifier {
	t.Helper()
	classifier, err := timeline.NewClassifier("UTC", nil)
	require.NoError(t, err)
	return classifier
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func testDeps(t *testing.T, backend *mockBackend) SessionDeps {
	t.Helper()
	return SessionDeps{
		Fetcher:    backend,
		Sender:     backend,
		Reader:     backend,
		Classifier: testClassifier(t),
		Logger:     testLogger(),
	}
}

func inboundMessage(id string, ts time.Time) models.Message {
	return models.Message{
		ID:             id,
		ConversationID: "conv-1",
		Direction:      models.DirectionInbound,
		SenderRole:     models.SenderCustomer,
		Status:         models.StatusDelivered,
		Type:           models.TextMessage,
		TextContent:    "msg " + id,
		Timestamp:      ts,
	}
}

func TestSessionLoadsInitialPage(t *testing.T) {
	backend := new(mockBackend)
	base := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)

	backend.On("FetchMessagePage", mock.Anything, "conv-1", "", mock.Anything).Return(&models.MessagePage{
		Messages: []models.Message{
			inboundMessage("m2", base.Add(time.Minute)),
			inboundMessage("m1", base),
		},
		NextCursor: "cur-1",
		HasMore:    true,
	}, nil)

	session := newConversationSession("conv-1", 0, testDeps(t, backend))
	added, err := session.LoadOlderPage(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, added)

	view := session.View()
	require.Len(t, view.Entries, 2)
	assert.Equal(t, "m1", view.Entries[0].Message.ID)
	assert.Equal(t, "m2", view.Entries[1].Message.ID)
	assert.True(t, view.HasMoreHistory)
}

func TestSessionLoadOlderPageFailClosed(t *testing.T) {
	backend := new(mockBackend)
	backend.On("FetchMessagePage", mock.Anything, "conv-1", "", mock.Anything).
		Return(nil, fmt.Errorf("network down"))

	session := newConversationSession("conv-1", 0, testDeps(t, backend))
	_, err := session.LoadOlderPage(context.Background())
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeFetchFailed, errors.GetCode(err))
	assert.True(t, errors.IsRetryable(err))

	// Timeline untouched
	assert.Empty(t, session.View().Entries)
}

func TestSessionAbandonsPageAfterClose(t *testing.T) {
	backend := new(mockBackend)
	deps := testDeps(t, backend)

	var session *ConversationSession
	deps.Fetcher = fetcherFunc(func(ctx context.Context, conversationID, cursor string, limit int) (*models.MessagePage, error) {
		// Close the session while the fetch is in flight
		session.Close()
		return &models.MessagePage{
			Messages: []models.Message{inboundMessage("m1", time.Now().UTC())},
		}, nil
	})

	session = newConversationSession("conv-1", 0, deps)
	added, err := session.LoadOlderPage(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, added)
	assert.Empty(t, session.View().Entries)
}

func TestSessionSendOptimisticLifecycle(t *testing.T) {
	backend := new(mockBackend)
	sentAt := time.Now().UTC()

	// The backend echoes the correlation token on the confirmation
	confirmedMsg := &models.Message{
		ID:             "m99",
		ConversationID: "conv-1",
		Direction:      models.DirectionOutbound,
		SenderRole:     models.SenderAgent,
		Status:         models.StatusSent,
		Type:           models.TextMessage,
		TextContent:    "on my way",
		Timestamp:      sentAt,
		SentAt:         &sentAt,
	}
	backend.On("SendMessage", mock.Anything, "conv-1", mock.AnythingOfType("string"), mock.Anything).
		Return(confirmedMsg, nil).Run(func(args mock.Arguments) {
		confirmedMsg.CorrelationToken = args.String(2)
	})

	session := newConversationSession("conv-1", 3, testDeps(t, backend))

	confirmed, err := session.Send(context.Background(), models.SendPayload{
		Type:        models.TextMessage,
		TextContent: "on my way",
	})
	require.NoError(t, err)
	assert.Equal(t, "m99", confirmed.ID)
	assert.False(t, confirmed.Provisional)

	view := session.View()
	require.Len(t, view.Entries, 1)
	assert.Equal(t, "m99", view.Entries[0].Message.ID)

	// The agent reply reset the divider
	assert.Equal(t, 0, view.Banner.UnreadCount)
	assert.True(t, view.Banner.HasReplied)
}

func TestSessionSendFailureKeepsFailedEntry(t *testing.T) {
	backend := new(mockBackend)
	backend.On("SendMessage", mock.Anything, "conv-1", mock.Anything, mock.Anything).
		Return(nil, fmt.Errorf("timeout"))

	session := newConversationSession("conv-1", 0, testDeps(t, backend))

	_, err := session.Send(context.Background(), models.SendPayload{
		Type:        models.TextMessage,
		TextContent: "hello?",
	})
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeSendFailed, errors.GetCode(err))

	view := session.View()
	require.Len(t, view.Entries, 1)
	assert.Equal(t, models.StatusFailed, view.Entries[0].Message.Status)
	assert.True(t, view.Entries[0].Message.Provisional)

	// Retry creates a second, independent entry
	backend.ExpectedCalls = nil
	retryMsg := &models.Message{
		ID:             "m100",
		ConversationID: "conv-1",
		Direction:      models.DirectionOutbound,
		Status:         models.StatusSent,
		Type:           models.TextMessage,
		TextContent:    "hello?",
		Timestamp:      time.Now().UTC(),
	}
	backend.On("SendMessage", mock.Anything, "conv-1", mock.Anything, mock.Anything).
		Return(retryMsg, nil).Run(func(args mock.Arguments) {
		retryMsg.CorrelationToken = args.String(2)
	})

	_, err = session.Send(context.Background(), models.SendPayload{
		Type:        models.TextMessage,
		TextContent: "hello?",
	})
	require.NoError(t, err)

	view = session.View()
	require.Len(t, view.Entries, 2)
	assert.Equal(t, models.StatusFailed, view.Entries[0].Message.Status)
	assert.Equal(t, "m100", view.Entries[1].Message.ID)
}

func TestSessionSendRejectsInvalidPayload(t *testing.T) {
	backend := new(mockBackend)
	session := newConversationSession("conv-1", 0, testDeps(t, backend))

	_, err := session.Send(context.Background(), models.SendPayload{
		Type:        models.TextMessage,
		TextContent: "   ",
	})
	require.Error(t, err)
	assert.Empty(t, session.View().Entries)
	backend.AssertNotCalled(t, "SendMessage")
}

func TestSessionHandlePushBumpsBannerOnInboundInsert(t *testing.T) {
	backend := new(mockBackend)
	session := newConversationSession("conv-1", 0, testDeps(t, backend))
	ctx := context.Background()

	msg := inboundMessage("m1", time.Now().UTC())
	outcome := session.HandlePush(ctx, msg)
	assert.Equal(t, timeline.OutcomeInserted, outcome)

	view := session.View()
	assert.Equal(t, 1, view.Banner.UnreadCount)
	assert.False(t, view.Banner.HasReplied)

	// Duplicate delivery neither duplicates the entry nor double counts
	outcome = session.HandlePush(ctx, msg)
	assert.Equal(t, timeline.OutcomeDuplicateIgnored, outcome)

	view = session.View()
	assert.Len(t, view.Entries, 1)
	assert.Equal(t, 1, view.Banner.UnreadCount)
}

func TestSessionHandlePushAckDoesNotTouchBanner(t *testing.T) {
	backend := new(mockBackend)
	session := newConversationSession("conv-1", 2, testDeps(t, backend))
	ctx := context.Background()

	msg := inboundMessage("m1", time.Now().UTC())
	require.Equal(t, timeline.OutcomeInserted, session.HandlePush(ctx, msg))
	require.Equal(t, 3, session.View().Banner.UnreadCount)

	// A status ack for the same message updates the entry, not the counter
	readAt := time.Now().UTC()
	ack := msg
	ack.Status = models.StatusRead
	ack.ReadAt = &readAt

	outcome := session.HandlePush(ctx, ack)
	assert.Equal(t, timeline.OutcomeUpdated, outcome)

	view := session.View()
	assert.Equal(t, 3, view.Banner.UnreadCount)
	assert.Equal(t, models.StatusRead, view.Entries[0].Message.Status)
}

func TestSessionMarkReadLeavesBannerAlone(t *testing.T) {
	backend := new(mockBackend)
	backend.On("MarkAsRead", mock.Anything, "conv-1", "m1").Return(nil)

	session := newConversationSession("conv-1", 0, testDeps(t, backend))
	ctx := context.Background()

	require.Equal(t, timeline.OutcomeInserted, session.HandlePush(ctx, inboundMessage("m1", time.Now().UTC())))
	require.Equal(t, 1, session.View().Banner.UnreadCount)

	require.NoError(t, session.MarkRead(ctx))

	// Read state went to the backend; the divider is untouched
	backend.AssertCalled(t, "MarkAsRead", mock.Anything, "conv-1", "m1")
	assert.Equal(t, 1, session.View().Banner.UnreadCount)
}

func TestSessionSubscribeNotifications(t *testing.T) {
	backend := new(mockBackend)
	session := newConversationSession("conv-1", 0, testDeps(t, backend))

	ch := session.Subscribe()

	session.HandlePush(context.Background(), inboundMessage("m1", time.Now().UTC()))

	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("expected a change notification")
	}

	session.Close()
	select {
	case _, open := <-ch:
		assert.False(t, open)
	case <-time.After(time.Second):
		t.Fatal("expected channel close on session close")
	}
}

func TestSessionOperationsAfterClose(t *testing.T) {
	backend := new(mockBackend)
	session := newConversationSession("conv-1", 0, testDeps(t, backend))
	session.Close()

	_, err := session.LoadOlderPage(context.Background())
	assert.Equal(t, errors.ErrCodeSessionClosed, errors.GetCode(err))

	_, err = session.Send(context.Background(), models.SendPayload{Type: models.TextMessage, TextContent: "hi"})
	assert.Equal(t, errors.ErrCodeSessionClosed, errors.GetCode(err))

	outcome := session.HandlePush(context.Background(), inboundMessage("m1", time.Now().UTC()))
	assert.Equal(t, timeline.OutcomeDuplicateIgnored, outcome)
}

func TestSessionReloadReseedsBanner(t *testing.T) {
	backend := new(mockBackend)
	base := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)

	backend.On("FetchMessagePage", mock.Anything, "conv-1", "", mock.Anything).Return(&models.MessagePage{
		Messages: []models.Message{inboundMessage("m1", base)},
		HasMore:  false,
	}, nil)
	backend.On("GetUnreadCount", mock.Anything, "conv-1").Return(4, nil)

	session := newConversationSession("conv-1", 0, testDeps(t, backend))
	session.HandlePush(context.Background(), inboundMessage("stale", base.Add(-time.Hour)))

	require.NoError(t, session.Reload(context.Background(), backend))

	view := session.View()
	require.Len(t, view.Entries, 1)
	assert.Equal(t, "m1", view.Entries[0].Message.ID)
	assert.Equal(t, 4, view.Banner.UnreadCount)
	assert.False(t, view.HasMoreHistory)
}
