package service

import (
	"context"

	"chatdesk/internal/models"

	"github.com/stretchr/testify/mock"
)

type mockBackend struct {
	mock.Mock
}

func (m *mockBackend) FetchMessagePage(ctx context.Context, conversationID, cursor string, limit int) (*models.MessagePage, error) {
	args := m.Called(ctx, conversationID, cursor, limit)
	if page := args.Get(0); page != nil {
		return page.(*models.MessagePage), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockBackend) SendMessage(ctx context.Context, conversationID, correlationToken string, payload models.SendPayload) (*models.Message, error) {
	args := m.Called(ctx, conversationID, correlationToken, payload)
	if msg := args.Get(0); msg != nil {
		return msg.(*models.Message), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockBackend) MarkAsRead(ctx context.Context, conversationID, messageID string) error {
	args := m.Called(ctx, conversationID, messageID)
	return args.Error(0)
}

func (m *mockBackend) GetUnreadCount(ctx context.Context, conversationID string) (int, error) {
	args := m.Called(ctx, conversationID)
	return args.Int(0), args.Error(1)
}

type mockStateStore struct {
	mock.Mock
}

func (m *mockStateStore) SaveReadMarker(ctx context.Context, marker *models.ReadMarker) error {
	args := m.Called(ctx, marker)
	return args.Error(0)
}

func (m *mockStateStore) SaveBannerSnapshot(ctx context.Context, conversationID string, state models.BannerState) error {
	args := m.Called(ctx, conversationID, state)
	return args.Error(0)
}

func (m *mockStateStore) GetBannerSnapshot(ctx context.Context, conversationID string) (*models.BannerSnapshot, error) {
	args := m.Called(ctx, conversationID)
	if snapshot := args.Get(0); snapshot != nil {
		return snapshot.(*models.BannerSnapshot), args.Error(1)
	}
	return nil, args.Error(1)
}

// fetcherFunc lets a test intercept page loads with arbitrary behavior.
type fetcherFunc func(ctx context.Context, conversationID, cursor string, limit int) (*models.MessagePage, error)

func (f fetcherFunc) FetchMessagePage(ctx context.Context, conversationID, cursor string, limit int) (*models.MessagePage, error) {
	return f(ctx, conversationID, cursor, limit)
}
