package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/Awatech12/kishiface/internal/observability"
)

type PublisherMock struct {
	mock.Mock
}

func (m *PublisherMock) Publish(ctx context.Context, routingKey string, envelope observability.EventEnvelope, headers map[string]string) error {
	args := m.Called(ctx, routingKey, envelope, headers)
	return args.Error(0)
}

var _ observability.Publisher = (*PublisherMock)(nil)
