package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"chatdesk/internal/models"
	"chatdesk/internal/service"
	"chatdesk/internal/timeline"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubBackend struct {
	pages   map[string]*models.MessagePage
	unread  map[string]int
	sendErr error
}

func newStubBackend() *stubBackend {
	return &stubBackend{
		pages:  make(map[string]*models.MessagePage),
		unread: make(map[string]int),
	}
}

func (b *stubBackend) FetchMessagePage(ctx context.Context, conversationID, cursor string, limit int) (*models.MessagePage, error) {
	if page, ok := b.pages[conversationID]; ok {
		return page, nil
	}
	return &models.MessagePage{}, nil
}

func (b *stubBackend) SendMessage(ctx context.Context, conversationID, correlationToken string, payload models.SendPayload) (*models.Message, error) {
	if b.sendErr != nil {
		return nil, b.sendErr
	}
	now := time.Now().UTC()
	return &models.Message{
		ID:               "srv-1",
		ConversationID:   conversationID,
		Direction:        models.DirectionOutbound,
		SenderRole:       models.SenderAgent,
		Status:           models.StatusSent,
		Type:             payload.Type,
		TextContent:      payload.TextContent,
		CorrelationToken: correlationToken,
		Timestamp:        now,
		SentAt:           &now,
	}, nil
}

func (b *stubBackend) MarkAsRead(ctx context.Context, conversationID, messageID string) error {
	return nil
}

func (b *stubBackend) GetUnreadCount(ctx context.Context, conversationID string) (int, error) {
	return b.unread[conversationID], nil
}

func testServer(t *testing.T, backend *stubBackend) *Server {
	t.Helper()

	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	classifier, err := timeline.NewClassifier("UTC", nil)
	require.NoError(t, err)

	manager := service.NewSessionManager(service.SessionDeps{
		Fetcher:    backend,
		Sender:     backend,
		Reader:     backend,
		Classifier: classifier,
		Logger:     logger,
	}, backend)
	t.Cleanup(manager.CloseAll)

	cfg := &models.Config{Server: models.ServerConfig{Port: 0}}
	return NewServer(cfg, manager, backend, logger)
}

func TestHealthEndpoint(t *testing.T) {
	server := testServer(t, newStubBackend())

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	server.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestMetricsEndpoint(t *testing.T) {
	server := testServer(t, newStubBackend())

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	server.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
}

func TestOpenReturnsSeededView(t *testing.T) {
	backend := newStubBackend()
	backend.unread["conv-1"] = 3
	backend.pages["conv-1"] = &models.MessagePage{
		Messages: []models.Message{{
			ID:             "m1",
			ConversationID: "conv-1",
			Direction:      models.DirectionInbound,
			SenderRole:     models.SenderCustomer,
			Status:         models.StatusDelivered,
			Type:           models.TextMessage,
			TextContent:    "hello",
			Timestamp:      time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC),
		}},
	}
	server := testServer(t, backend)

	req := httptest.NewRequest(http.MethodPost, "/conversations/conv-1/open", nil)
	rec := httptest.NewRecorder()
	server.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var view service.View
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	assert.Equal(t, "conv-1", view.ConversationID)
	require.Len(t, view.Entries, 1)
	assert.Equal(t, 3, view.Banner.UnreadCount)
}

func TestTimelineRequiresOpenSession(t *testing.T) {
	server := testServer(t, newStubBackend())

	req := httptest.NewRequest(http.MethodGet, "/conversations/conv-1/timeline", nil)
	rec := httptest.NewRecorder()
	server.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSendThroughOpenSession(t *testing.T) {
	server := testServer(t, newStubBackend())

	rec := httptest.NewRecorder()
	server.router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/conversations/conv-1/open", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := strings.NewReader(`{"type":"text","textContent":"on my way"}`)
	req := httptest.NewRequest(http.MethodPost, "/conversations/conv-1/messages", body)
	rec = httptest.NewRecorder()
	server.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)

	var confirmed models.Message
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &confirmed))
	assert.Equal(t, "srv-1", confirmed.ID)
	assert.False(t, confirmed.Provisional)
}

func TestSendFailureReturnsErrorBody(t *testing.T) {
	backend := newStubBackend()
	backend.sendErr = fmt.Errorf("upstream timeout")
	server := testServer(t, backend)

	rec := httptest.NewRecorder()
	server.router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/conversations/conv-1/open", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := strings.NewReader(`{"type":"text","textContent":"hello?"}`)
	rec = httptest.NewRecorder()
	server.router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/conversations/conv-1/messages", body))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	var errBody map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &errBody))
	assert.Contains(t, errBody, "error")
}

func TestSendRejectsMalformedJSON(t *testing.T) {
	server := testServer(t, newStubBackend())

	rec := httptest.NewRecorder()
	server.router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/conversations/conv-1/open", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	server.router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/conversations/conv-1/messages", strings.NewReader("{not json")))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHistoryEndpoint(t *testing.T) {
	backend := newStubBackend()
	backend.pages["conv-1"] = &models.MessagePage{
		Messages: []models.Message{{
			ID:             "m1",
			ConversationID: "conv-1",
			Direction:      models.DirectionInbound,
			Status:         models.StatusDelivered,
			Type:           models.TextMessage,
			Timestamp:      time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC),
		}},
		HasMore: false,
	}
	server := testServer(t, backend)

	rec := httptest.NewRecorder()
	server.router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/conversations/conv-1/open", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	// The page was already consumed at open; a further load is a no-op
	rec = httptest.NewRecorder()
	server.router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/conversations/conv-1/history", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp historyResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 0, resp.Added)
	assert.False(t, resp.HasMoreHistory)
}

func TestCloseEndpoint(t *testing.T) {
	server := testServer(t, newStubBackend())

	rec := httptest.NewRecorder()
	server.router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/conversations/conv-1/open", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	server.router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/conversations/conv-1/close", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	// Second close reports not found
	rec = httptest.NewRecorder()
	server.router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/conversations/conv-1/close", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestReloadEndpoint(t *testing.T) {
	backend := newStubBackend()
	server := testServer(t, backend)

	rec := httptest.NewRecorder()
	server.router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/conversations/conv-1/open", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	backend.unread["conv-1"] = 7

	rec = httptest.NewRecorder()
	server.router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/conversations/conv-1/reload", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var view service.View
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	assert.Equal(t, 7, view.Banner.UnreadCount)
}
