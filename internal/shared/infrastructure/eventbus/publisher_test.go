package eventbus

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNoopPublisher(t *testing.T) {
	p := NewNoopPublisher(nil)
	require.NoError(t, p.Publish(context.Background(), Envelope{RoutingKey: "credits.charged", Payload: []byte(`{}`)}))
	assert.NoError(t, p.Close())
}

func TestRecordingPublisher(t *testing.T) {
	p := NewRecordingPublisher()
	payload := []byte(`{"cost":2}`)

	require.NoError(t, p.Publish(context.Background(), Envelope{
		MessageID:     "evt-1",
		RoutingKey:    "credits.charged",
		CorrelationID: "corr-1",
		Payload:       payload,
	}))
	payload[0] = 'x'

	msgs := p.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "credits.charged", msgs[0].RoutingKey)
	assert.Equal(t, "corr-1", msgs[0].CorrelationID)
	assert.Equal(t, `{"cost":2}`, string(msgs[0].Payload))

	p.Err = errors.New("broker down")
	assert.Error(t, p.Publish(context.Background(), Envelope{RoutingKey: "credits.charged"}))
	assert.Len(t, p.Messages(), 1)
}

func TestPublishing_CarriesTraceHeaders(t *testing.T) {
	msg := publishing(Envelope{
		MessageID:     "evt-1",
		RoutingKey:    "enrichment.completed",
		CorrelationID: "corr-1",
		UserID:        "user-1",
		Payload:       []byte(`{}`),
	})

	assert.Equal(t, "evt-1", msg.MessageId)
	assert.Equal(t, "corr-1", msg.CorrelationId)
	assert.Equal(t, "enrichment.completed", msg.Type)
	assert.Equal(t, "user-1", msg.Headers["user_id"])
	assert.False(t, msg.Timestamp.IsZero())
}
