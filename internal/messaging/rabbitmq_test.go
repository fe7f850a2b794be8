package messaging

import (
	"encoding/json"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trip-planner/internal/domain"
)

func TestNewPublishing(t *testing.T) {
	user := &domain.User{ID: 42, Username: "alice"}
	at := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	msg, err := newPublishing(domain.Event{Kind: domain.EventPersonaChanged, User: user, OccurredAt: at})
	require.NoError(t, err)

	assert.Equal(t, "application/json", msg.ContentType)
	assert.Equal(t, amqp.Persistent, msg.DeliveryMode)
	assert.Equal(t, "persona.changed", msg.Type)
	assert.Equal(t, at, msg.Timestamp)
	assert.Equal(t, "42", msg.Headers["user_id"])
	assert.NotEmpty(t, msg.MessageId)

	var body map[string]any
	require.NoError(t, json.Unmarshal(msg.Body, &body))
	assert.Equal(t, "persona.changed", body["type"])
}

func TestNewPublishing_StampsMissingTime(t *testing.T) {
	msg, err := newPublishing(domain.Event{Kind: domain.EventSignedOut})
	require.NoError(t, err)

	assert.False(t, msg.Timestamp.IsZero())
	assert.Equal(t, "0", msg.Headers["user_id"])
}

func TestDecodeDelivery(t *testing.T) {
	profile := &domain.Profile{ID: 7, Name: "Solo"}
	published, err := newPublishing(domain.Event{Kind: domain.EventPersonaChanged, Profile: profile})
	require.NoError(t, err)

	tests := []struct {
		name    string
		body    []byte
		wantErr bool
	}{
		{"round_trip", published.Body, false},
		{"not_json", []byte("nope"), true},
		{"no_type", []byte(`{"user":{"id":1}}`), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := decodeDelivery(amqp.Delivery{Body: tt.body})
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, domain.EventPersonaChanged, ev.Kind)
			require.NotNil(t, ev.Profile)
			assert.Equal(t, int64(7), ev.Profile.ID)
		})
	}
}
