package alerts_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/redis/go-redis/v9"

	"github.com/ogulcanaydogan/Budget-Deviation-Guardian/pkg/alerts"
	"github.com/ogulcanaydogan/Budget-Deviation-Guardian/pkg/apperrors"
	"github.com/ogulcanaydogan/Budget-Deviation-Guardian/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePublisher struct {
	channel string
	message any
	err     error
}

func (f *fakePublisher) Publish(_ context.Context, channel string, message any) *redis.IntCmd {
	f.channel = channel
	f.message = message
	return redis.NewIntResult(1, f.err)
}

func TestDashboardNotifier_NoPublisher(t *testing.T) {
	n := alerts.NewDashboardNotifier(nil, "")
	assert.Equal(t, "dashboard", n.Name())
	assert.Equal(t, model.ChannelDashboard, n.Channel())
	assert.NoError(t, n.Send(context.Background(), sampleMessage(model.EventCreated)))
}

func TestDashboardNotifier_Publishes(t *testing.T) {
	pub := &fakePublisher{}
	n := alerts.NewDashboardNotifier(pub, "")

	require.NoError(t, n.Send(context.Background(), sampleMessage(model.EventCreated)))
	assert.Equal(t, "bdg:dashboard:t1", pub.channel)

	data, ok := pub.message.([]byte)
	require.True(t, ok)
	var ev alerts.DashboardEvent
	require.NoError(t, json.Unmarshal(data, &ev))
	assert.Equal(t, "n1", ev.NotificationID)
	assert.Equal(t, "u1", ev.RecipientID)
	assert.Equal(t, "Alerta de Desvio Médio", ev.Title)
	assert.Equal(t, "#ca8a04", ev.SeverityInfo.Color)
}

func TestDashboardNotifier_PublishError(t *testing.T) {
	pub := &fakePublisher{err: errors.New("connection refused")}
	n := alerts.NewDashboardNotifier(pub, "obras:feed")

	err := n.Send(context.Background(), sampleMessage(model.EventCreated))
	assert.ErrorIs(t, err, apperrors.ErrDelivery)
	assert.Equal(t, "obras:feed:t1", pub.channel)
}
