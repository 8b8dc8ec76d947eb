package pubsub_test

import (
	"context"
	"testing"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	hltvpubsub "github.com/w1tte/hltv-scraper-sub000/internal/publisher/pubsub"
)

func TestPublishDeliversJSON(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	srv := pstest.NewServer()
	defer srv.Close()

	conn, err := grpc.NewClient(srv.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	defer conn.Close()

	client, err := pubsub.NewClient(ctx, "hltv-test", option.WithGRPCConn(conn))
	require.NoError(t, err)
	defer client.Close()

	topic, err := client.CreateTopic(ctx, "units")
	require.NoError(t, err)
	sub, err := client.CreateSubscription(ctx, "units-sub", pubsub.SubscriptionConfig{Topic: topic})
	require.NoError(t, err)

	pub := hltvpubsub.NewWithClient(client)
	id, err := pub.Publish(ctx, "units", map[string]any{"stage": "matches", "key": "2371234"})
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	require.NoError(t, pub.Close())

	received := make(chan *pubsub.Message, 1)
	recvCtx, stop := context.WithCancel(ctx)
	go func() {
		_ = sub.Receive(recvCtx, func(_ context.Context, msg *pubsub.Message) {
			msg.Ack()
			select {
			case received <- msg:
			default:
			}
			stop()
		})
	}()

	select {
	case msg := <-received:
		assert.JSONEq(t, `{"stage":"matches","key":"2371234"}`, string(msg.Data))
		assert.Equal(t, "application/json", msg.Attributes["content_type"])
	case <-ctx.Done():
		t.Fatal("message not delivered")
	}
}

func TestPublishRequiresTopic(t *testing.T) {
	srv := pstest.NewServer()
	defer srv.Close()
	conn, err := grpc.NewClient(srv.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	defer conn.Close()
	client, err := pubsub.NewClient(context.Background(), "hltv-test", option.WithGRPCConn(conn))
	require.NoError(t, err)
	defer client.Close()

	_, err = hltvpubsub.NewWithClient(client).Publish(context.Background(), "", "x")
	require.Error(t, err)
}

func TestNewRequiresProject(t *testing.T) {
	_, err := hltvpubsub.New(context.Background(), "")
	require.Error(t, err)
}
