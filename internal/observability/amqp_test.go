package observability_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/Awatech12/kishiface/internal/mocks"
	"github.com/Awatech12/kishiface/internal/observability"
)

func TestPublishEventStampsAndForwards(t *testing.T) {
	publisher := new(mocks.PublisherMock)
	observability.SetPublisher(publisher)
	t.Cleanup(func() { observability.SetPublisher(nil) })

	headers := observability.BuildHeaders("req-1", "trace-1")
	publisher.On("Publish", mock.Anything, observability.RouteSessionEvents,
		mock.MatchedBy(func(env observability.EventEnvelope) bool {
			return env.EventType == "ws_events" && env.EventName == "ws_connect" && !env.OccurredAt.IsZero()
		}), headers).Return(nil).Once()

	err := observability.PublishEvent(context.Background(), observability.RouteSessionEvents, observability.EventEnvelope{
		EventType: "ws_events",
		EventName: "ws_connect",
		Payload:   observability.SessionPayload{ConnID: "c1", UserID: 7},
	}, headers)
	assert.NoError(t, err)
	publisher.AssertExpectations(t)
}

func TestPublishEventWithoutPublisherIsNoop(t *testing.T) {
	observability.SetPublisher(nil)

	err := observability.PublishEvent(context.Background(), observability.RouteUnreadEvents, observability.EventEnvelope{}, nil)
	assert.NoError(t, err)
}

func TestBuildHeadersSkipsEmptyValues(t *testing.T) {
	assert.Empty(t, observability.BuildHeaders("", ""))
	assert.Equal(t, map[string]string{"x-request-id": "r"}, observability.BuildHeaders("r", ""))
}
