package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPublisherStoresMessages(t *testing.T) {
	t.Parallel()

	pub := New()
	id1, err := pub.Publish(context.Background(), "award-digests", map[string]string{"subject": "2 new"})
	require.NoError(t, err)
	require.Equal(t, "memory-1", id1)
	id2, err := pub.Publish(context.Background(), "award-digests-test", "payload")
	require.NoError(t, err)
	require.Equal(t, "memory-2", id2)

	msgs := pub.Messages()
	require.Len(t, msgs, 2)
	require.Equal(t, "award-digests", msgs[0].Topic)
	require.Equal(t, "award-digests-test", msgs[1].Topic)

	msgs[0].Topic = "modified"
	require.Equal(t, "award-digests", pub.Messages()[0].Topic, "Messages returns a copy")
}

func TestPublisherFailWith(t *testing.T) {
	t.Parallel()

	pub := New()
	pub.FailWith(errors.New("relay down"))
	_, err := pub.Publish(context.Background(), "t", nil)
	require.ErrorContains(t, err, "relay down")
	require.Empty(t, pub.Messages())

	pub.FailWith(nil)
	_, err = pub.Publish(context.Background(), "t", nil)
	require.NoError(t, err)
}
