package award

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// ErrAllEndpointsExhausted is returned when no candidate address produced a usable response.
var ErrAllEndpointsExhausted = errors.New("all award endpoints exhausted")

// maxExcerpt bounds response bodies carried inside errors and logs.
const maxExcerpt = 200

// TransportError describes a failed HTTP exchange: timeout, connection
// failure or a non-success status.
type TransportError struct {
	URL    string
	Status int
	Body   string
	Err    error
}

func (e *TransportError) Error() string {
	var b strings.Builder
	b.WriteString("transport")
	if e.URL != "" {
		b.WriteString(" ")
		b.WriteString(e.URL)
	}
	if e.Status != 0 {
		fmt.Fprintf(&b, ": status %d", e.Status)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	if e.Body != "" {
		b.WriteString(": ")
		b.WriteString(e.Body)
	}
	return b.String()
}

func (e *TransportError) Unwrap() error { return e.Err }

// Timeout reports whether the exchange failed because a deadline elapsed.
func (e *TransportError) Timeout() bool {
	if errors.Is(e.Err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(e.Err, &netErr) && netErr.Timeout()
}

// MalformedResponseError means the server answered successfully but the body
// could not be decoded into the expected shape. It is never retried.
type MalformedResponseError struct {
	URL    string
	Status int
	Err    error
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("malformed response from %s (status %d): %v", e.URL, e.Status, e.Err)
}

func (e *MalformedResponseError) Unwrap() error { return e.Err }

// FetchError is the terminal failure of a fetch against one address after
// retries were exhausted or stopped.
type FetchError struct {
	Address  string
	Attempts int
	Err      error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s failed after %d attempt(s): %v", e.Address, e.Attempts, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// ChunkError reports a persistence chunk the store rejected.
type ChunkError struct {
	Index  int
	Offset int
	Size   int
	Err    error
}

func (e *ChunkError) Error() string {
	return fmt.Sprintf("chunk %d (records %d-%d) rejected: %v", e.Index, e.Offset, e.Offset+e.Size-1, e.Err)
}

func (e *ChunkError) Unwrap() error { return e.Err }

// Excerpt trims a response body for inclusion in errors and logs.
func Excerpt(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) <= maxExcerpt {
		return s
	}
	return s[:maxExcerpt]
}

// Explain maps an error to a sentence for people and a retry hint.
// Unknown errors get a generic message.
func Explain(err error) (message string, hint string) {
	if err == nil {
		return "", ""
	}
	var (
		transport *TransportError
		malformed *MalformedResponseError
		chunk     *ChunkError
	)
	switch {
	case errors.Is(err, context.Canceled):
		return "The operation was canceled.", ""
	case errors.Is(err, ErrAllEndpointsExhausted):
		return "The procurement portal did not answer on any known address.",
			"The portal is often slow; try again in a few minutes."
	case errors.As(err, &malformed):
		return "The procurement portal answered with data in an unexpected format.",
			"The portal may be under maintenance; try again later."
	case errors.As(err, &chunk):
		return fmt.Sprintf("Saving part of the results failed (chunk %d).", chunk.Index),
			"Already saved records are kept; the next run will fill the gap."
	case errors.As(err, &transport):
		if transport.Timeout() {
			return "The remote service took too long to answer.", "Try again in a few minutes."
		}
		if transport.Status >= 500 {
			return fmt.Sprintf("The remote service failed with status %d.", transport.Status),
				"Try again in a few minutes."
		}
		if transport.Status != 0 {
			return fmt.Sprintf("The remote service rejected the request with status %d.", transport.Status),
				"Check the configured credentials and addresses."
		}
		return "The remote service could not be reached.", "Check the network connection and try again."
	case errors.Is(err, context.DeadlineExceeded):
		return "The operation took too long.", "Try again in a few minutes."
	default:
		return "An unexpected error occurred.", ""
	}
}
