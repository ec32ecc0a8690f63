package pubsub

import (
	"context"
	"encoding/json"
	"testing"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

func newTestPublisher(t *testing.T, cfg Config) (*Publisher, *pstest.Server) {
	t.Helper()
	ctx := context.Background()
	srv := pstest.NewServer()
	t.Cleanup(func() { _ = srv.Close() })

	conn, err := grpc.NewClient(srv.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)

	client, err := pubsub.NewClient(ctx, "award-digest-test", option.WithGRPCConn(conn))
	require.NoError(t, err)
	_, err = client.CreateTopic(ctx, "award-digests")
	require.NoError(t, err)

	pub := New(client, cfg)
	t.Cleanup(func() { _ = pub.Close() })
	return pub, srv
}

func TestPublishSendsJSONWithTraceContext(t *testing.T) {
	t.Parallel()

	pub, srv := newTestPublisher(t, Config{
		DefaultTopic: "award-digests",
		Propagator:   propagation.TraceContext{},
	})

	tp := sdktrace.NewTracerProvider()
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	ctx, span := tp.Tracer("test").Start(context.Background(), "cycle")
	defer span.End()

	id, err := pub.Publish(ctx, "", map[string]any{"subject": "2 new construction awards", "recipient": "ops@example.com"})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	msgs := srv.Messages()
	require.Len(t, msgs, 1)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(msgs[0].Data, &decoded))
	require.Equal(t, "ops@example.com", decoded["recipient"])
	require.Equal(t, "application/json", msgs[0].Attributes["content_type"])
	require.NotEmpty(t, msgs[0].Attributes["traceparent"])
}

func TestPublishRequiresTopic(t *testing.T) {
	t.Parallel()

	pub, _ := newTestPublisher(t, Config{})
	_, err := pub.Publish(context.Background(), "", "x")
	require.ErrorContains(t, err, "topic is required")
}

func TestPublishUnknownTopicFails(t *testing.T) {
	t.Parallel()

	pub, _ := newTestPublisher(t, Config{})
	_, err := pub.Publish(context.Background(), "missing", "x")
	require.Error(t, err)
}

func TestCarrierRoundTrip(t *testing.T) {
	t.Parallel()

	c := &pubsubCarrier{attrs: map[string]string{}}
	c.Set("traceparent", "00-abc")
	require.Equal(t, "00-abc", c.Get("traceparent"))
	require.Equal(t, []string{"traceparent"}, c.Keys())
}
