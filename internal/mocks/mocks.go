package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/Awatech12/kishiface/internal/models"
	"github.com/Awatech12/kishiface/internal/store"
)

type StoreMock struct {
	mock.Mock
}

func (m *StoreMock) PersistMessage(ctx context.Context, room string, senderID int, body, attachmentURL, attachmentKind string) (models.Message, error) {
	args := m.Called(ctx, room, senderID, body, attachmentURL, attachmentKind)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *StoreMock) LatestSequence(ctx context.Context, room string) (int64, error) {
	args := m.Called(ctx, room)
	return args.Get(0).(int64), args.Error(1)
}

func (m *StoreMock) MessagesAfter(ctx context.Context, room string, after int64, limit int) ([]models.Message, error) {
	args := m.Called(ctx, room, after, limit)
	var msgs []models.Message
	if val := args.Get(0); val != nil {
		msgs = val.([]models.Message)
	}
	return msgs, args.Error(1)
}

func (m *StoreMock) GetMessage(ctx context.Context, messageID int64) (models.Message, error) {
	args := m.Called(ctx, messageID)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *StoreMock) PersistWatermark(ctx context.Context, room string, userID int, sequence int64) (int64, error) {
	args := m.Called(ctx, room, userID, sequence)
	return args.Get(0).(int64), args.Error(1)
}

func (m *StoreMock) Watermark(ctx context.Context, room string, userID int) (int64, error) {
	args := m.Called(ctx, room, userID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *StoreMock) EnsureMembership(ctx context.Context, room string, userID int) error {
	args := m.Called(ctx, room, userID)
	return args.Error(0)
}

func (m *StoreMock) IsMember(ctx context.Context, room string, userID int) (bool, error) {
	args := m.Called(ctx, room, userID)
	return args.Bool(0), args.Error(1)
}

func (m *StoreMock) ListRoomsForUser(ctx context.Context, userID int) ([]string, error) {
	args := m.Called(ctx, userID)
	var roomIDs []string
	if val := args.Get(0); val != nil {
		roomIDs = val.([]string)
	}
	return roomIDs, args.Error(1)
}

func (m *StoreMock) RoomMembers(ctx context.Context, room string) ([]int, error) {
	args := m.Called(ctx, room)
	var userIDs []int
	if val := args.Get(0); val != nil {
		userIDs = val.([]int)
	}
	return userIDs, args.Error(1)
}

func (m *StoreMock) ToggleReaction(ctx context.Context, messageID int64, userID int, emoji string) (bool, error) {
	args := m.Called(ctx, messageID, userID, emoji)
	return args.Bool(0), args.Error(1)
}

var _ store.Store = (*StoreMock)(nil)

type AuthenticatorMock struct {
	mock.Mock
}

func (m *AuthenticatorMock) Authenticate(ctx context.Context, token string) (int, string, error) {
	args := m.Called(ctx, token)
	return args.Int(0), args.String(1), args.Error(2)
}
