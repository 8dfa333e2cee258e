package gateway

import "fmt"

const genericRemoteMessage = "request to the authority failed"

// RemoteError reports a failed call against the authority: either a
// transport failure (StatusCode 0) or a non-2xx response. Message is
// the authority's own message when it supplied one.
type RemoteError struct {
	StatusCode int
	Message    string
	cause      error
}

func (e *RemoteError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("remote call failed: %s", e.Message)
	}
	return fmt.Sprintf("remote call failed (status %d): %s", e.StatusCode, e.Message)
}

func (e *RemoteError) Unwrap() error { return e.cause }
