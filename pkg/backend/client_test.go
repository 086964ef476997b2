package backend

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"chatdesk/internal/errors"
	"chatdesk/internal/models"
	"chatdesk/pkg/backend/types"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.Handler) (Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)

	client := NewClient(server.URL, Options{
		Timeout:            5 * time.Second,
		CircuitMaxFailures: 10,
		CircuitResetTime:   time.Second,
	}, logger)
	return client, server
}

func TestFetchMessagePage(t *testing.T) {
	ts := time.Date(2024, 1, 15, 21, 34, 0, 0, time.UTC)

	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/conversations/conv-1/messages", r.URL.Path)
		assert.Equal(t, "cur-42", r.URL.Query().Get("cursor"))
		assert.Equal(t, "50", r.URL.Query().Get("limit"))

		resp := types.PageResponse{
			Messages: []types.APIMessage{
				{
					ID:             "m1",
					ConversationID: "conv-1",
					Direction:      "inbound",
					SenderRole:     "customer",
					Status:         "delivered",
					Type:           "text",
					Text:           "hello",
					Timestamp:      ts,
				},
			},
			NextCursor: "cur-41",
			HasMore:    true,
		}
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))

	page, err := client.FetchMessagePage(context.Background(), "conv-1", "cur-42", 50)
	require.NoError(t, err)
	require.Len(t, page.Messages, 1)
	assert.Equal(t, "m1", page.Messages[0].ID)
	assert.Equal(t, models.DirectionInbound, page.Messages[0].Direction)
	assert.Equal(t, "hello", page.Messages[0].TextContent)
	assert.Equal(t, "cur-41", page.NextCursor)
	assert.True(t, page.HasMore)
}

func TestSendMessageEchoesCorrelationToken(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)

		var req types.SendRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "t-abc", req.ClientTempID)
		assert.Equal(t, "text", req.Type)

		resp := types.APIMessage{
			ID:             "m99",
			ConversationID: "conv-1",
			Direction:      "outbound",
			SenderRole:     "agent",
			Status:         "sent",
			Type:           "text",
			Text:           req.Text,
			ClientTempID:   req.ClientTempID,
			Timestamp:      time.Now().UTC(),
		}
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))

	msg, err := client.SendMessage(context.Background(), "conv-1", "t-abc",
		models.SendPayload{Type: models.TextMessage, TextContent: "on my way"})
	require.NoError(t, err)
	assert.Equal(t, "m99", msg.ID)
	assert.Equal(t, "t-abc", msg.CorrelationToken)
	assert.Equal(t, models.StatusSent, msg.Status)
}

func TestMarkAsRead(t *testing.T) {
	var gotMessageID string
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/conversations/conv-1/read", r.URL.Path)
		var req types.MarkReadRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		gotMessageID = req.MessageID
		w.WriteHeader(http.StatusNoContent)
	}))

	require.NoError(t, client.MarkAsRead(context.Background(), "conv-1", "m42"))
	assert.Equal(t, "m42", gotMessageID)
}

func TestGetUnreadCount(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/conversations/conv-1/unread", r.URL.Path)
		require.NoError(t, json.NewEncoder(w).Encode(types.UnreadCountResponse{Count: 7}))
	}))

	count, err := client.GetUnreadCount(context.Background(), "conv-1")
	require.NoError(t, err)
	assert.Equal(t, 7, count)
}

func TestServerErrorIsRetryable(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"upstream degraded"}`, http.StatusBadGateway)
	}))

	_, err := client.FetchMessagePage(context.Background(), "conv-1", "", 0)
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeBackendAPI, errors.GetCode(err))
	assert.True(t, errors.IsRetryable(err))
}

func TestClientErrorIsNotRetryable(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"conversation not found"}`))
	}))

	_, err := client.FetchMessagePage(context.Background(), "missing", "", 0)
	require.Error(t, err)
	assert.False(t, errors.IsRetryable(err))
	assert.Contains(t, err.Error(), "conversation not found")
}

func TestCircuitBreakerOpensOnRepeatedFailures(t *testing.T) {
	var hits int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	t.Cleanup(server.Close)

	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	client := NewClient(server.URL, Options{
		Timeout:            time.Second,
		CircuitMaxFailures: 2,
		CircuitResetTime:   time.Minute,
	}, logger)

	ctx := context.Background()
	_, err := client.FetchMessagePage(ctx, "conv-1", "", 0)
	require.Error(t, err)
	_, err = client.FetchMessagePage(ctx, "conv-1", "", 0)
	require.Error(t, err)

	// Circuit is open now; the server must not be hit again
	_, err = client.FetchMessagePage(ctx, "conv-1", "", 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "circuit breaker is open")
	assert.Equal(t, 2, hits)
}
