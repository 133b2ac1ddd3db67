package messagepipeline_test

import (
	"context"
	"testing"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// setupPubsub starts an in-process Pub/Sub server and returns a client bound to it.
func setupPubsub(t *testing.T, projectID string) (*pubsub.Client, *pstest.Server) {
	t.Helper()
	srv := pstest.NewServer()
	t.Cleanup(func() { _ = srv.Close() })

	conn, err := grpc.NewClient(srv.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	client, err := pubsub.NewClient(context.Background(), projectID, option.WithGRPCConn(conn))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client, srv
}

// createTopicAndSub creates a topic with a single subscription.
func createTopicAndSub(t *testing.T, client *pubsub.Client, topicID, subID string) *pubsub.Topic {
	t.Helper()
	ctx := context.Background()
	topic, err := client.CreateTopic(ctx, topicID)
	require.NoError(t, err)
	if subID != "" {
		_, err = client.CreateSubscription(ctx, subID, pubsub.SubscriptionConfig{Topic: topic})
		require.NoError(t, err)
	}
	return topic
}
