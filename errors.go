package docauth

import (
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var (
	// ErrAuthorizationDenied is returned when the store rejects an operation
	// because the presented scoped credential is missing, expired or out of scope
	ErrAuthorizationDenied = errors.New("authorization denied")

	// ErrExhaustedRetry is returned by the access proxy once its attempt budget is used up
	ErrExhaustedRetry = errors.New("could not establish scoped access")

	// ErrNoSession is returned when a request carries no valid framework session
	ErrNoSession = errors.New("no valid session")

	// ErrExchangeFailed is returned when the privileged actor exchange fails
	ErrExchangeFailed = errors.New("privileged identity exchange failed")
)

// StatusError is an HTTP response that was not a success
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("unexpected status: HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("unexpected status: HTTP %d: %s", e.StatusCode, e.Body)
}

// IsAuthorizationDenied reports whether err means the held scoped credential
// was not accepted. It understands wrapped ErrAuthorizationDenied, gRPC
// PermissionDenied/Unauthenticated statuses (what the Datastore client surfaces)
// and HTTP 401/403 responses.
func IsAuthorizationDenied(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrAuthorizationDenied) {
		return true
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode == http.StatusUnauthorized || se.StatusCode == http.StatusForbidden
	}
	if st, ok := status.FromError(err); ok {
		switch st.Code() {
		case codes.PermissionDenied, codes.Unauthenticated:
			return true
		}
	}
	return false
}
