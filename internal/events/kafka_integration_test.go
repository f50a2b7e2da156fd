//go:build integration

package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"

	"onboarding/internal/application/models"
	"onboarding/internal/platform/config"
	"onboarding/internal/platform/kafka"
	"onboarding/pkg/testutil/containers"
)

func TestKafkaPublisherAgainstBroker(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	rp := containers.NewRedpandaContainer(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	const topic = "onboarding.events.it"
	client, err := kafka.NewClient(config.KafkaConfig{Brokers: []string{rp.Broker}, Topic: topic, ClientID: "it"})
	require.NoError(t, err)
	defer client.Close()
	require.NoError(t, kafka.EnsureTopic(ctx, client, topic, 1, 1))

	pub, err := NewKafkaPublisher(client, topic)
	require.NoError(t, err)

	app, err := models.NewApplication(
		models.Personal{FirstName: "Alan", LastName: "Turing", SSN: "111-22-3333"},
		models.Contact{Email: "alan@example.com", Phone: "+441111111111"},
		time.Now(),
	)
	require.NoError(t, err)
	require.NoError(t, pub.Publish(ctx, app.PendingEvents()...))
	require.NoError(t, pub.Close(10*time.Second))

	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(rp.Broker),
		kgo.ConsumeTopics(topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	require.NoError(t, err)
	defer consumer.Close()

	fetches := consumer.PollFetches(ctx)
	require.NoError(t, fetches.Err())
	records := fetches.Records()
	require.Len(t, records, 1)
	require.Equal(t, app.ID.String(), string(records[0].Key))

	var env Envelope
	require.NoError(t, json.Unmarshal(records[0].Value, &env))
	require.Equal(t, models.EventApplicationCreated, env.Type)
	require.Equal(t, app.ID, env.ApplicationID)
}
