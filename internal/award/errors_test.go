package award

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExplain(t *testing.T) {
	t.Parallel()

	exhausted := fmt.Errorf("resolve: %w", errors.Join(ErrAllEndpointsExhausted,
		&FetchError{Address: "https://a", Attempts: 4, Err: &TransportError{Err: context.DeadlineExceeded}}))
	msg, hint := Explain(exhausted)
	require.Contains(t, msg, "did not answer")
	require.NotEmpty(t, hint)

	msg, _ = Explain(&MalformedResponseError{URL: "https://a", Status: 200, Err: errors.New("bad json")})
	require.Contains(t, msg, "unexpected format")

	msg, _ = Explain(&ChunkError{Index: 2, Offset: 200, Size: 100, Err: &TransportError{Status: 500}})
	require.Contains(t, msg, "chunk 2")

	msg, _ = Explain(&TransportError{Status: 401})
	require.Contains(t, msg, "401")

	msg, _ = Explain(&TransportError{Err: context.DeadlineExceeded})
	require.Contains(t, msg, "too long")

	msg, hint = Explain(errors.New("boom"))
	require.Equal(t, "An unexpected error occurred.", msg)
	require.Empty(t, hint)

	msg, hint = Explain(nil)
	require.Empty(t, msg)
	require.Empty(t, hint)
}

func TestErrorMessagesAndUnwrap(t *testing.T) {
	t.Parallel()

	cause := &TransportError{URL: "https://a", Status: 503, Body: "down"}
	fetchErr := &FetchError{Address: "https://a", Attempts: 4, Err: cause}
	require.Equal(t, "transport https://a: status 503: down", cause.Error())
	require.Contains(t, fetchErr.Error(), "after 4 attempt(s)")

	var target *TransportError
	require.True(t, errors.As(fetchErr, &target))
	require.Equal(t, 503, target.Status)

	chunk := &ChunkError{Index: 1, Offset: 100, Size: 100, Err: cause}
	require.Contains(t, chunk.Error(), "records 100-199")
	require.ErrorIs(t, chunk, cause)
}

func TestExcerpt(t *testing.T) {
	t.Parallel()

	require.Equal(t, "short", Excerpt([]byte("  short \n")))
	require.Len(t, Excerpt([]byte(strings.Repeat("x", 500))), 200)
}
