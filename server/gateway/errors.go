package gateway

import (
	"errors"
	"fmt"
)

// Kind names the outcome of a completion call.
type Kind int

const (
	// KindNone means the call succeeded.
	KindNone Kind = iota
	// KindRemoteStatus means the API replied with an error status.
	KindRemoteStatus
	// KindNoResponse means the request went out but no reply came back.
	KindNoResponse
	// KindRequestSetup means the request was never dispatched.
	KindRequestSetup
)

// String returns the outcome label used in logs and metrics.
func (k Kind) String() string {
	switch k {
	case KindNone:
		return "succeeded"
	case KindRemoteStatus:
		return "failed_remote"
	case KindNoResponse:
		return "failed_no_response"
	case KindRequestSetup:
		return "failed_setup"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Failure is the closed set of errors returned by Gateway.Complete:
// *RemoteStatusError, *NoResponseError and *RequestSetupError.
type Failure interface {
	error
	Kind() Kind
	sealed()
}

// RemoteStatusError reports a reply from the completion API that could not
// be turned into a completion, normally a non-2xx status.
type RemoteStatusError struct {
	Status int
	Body   string
}

func (e *RemoteStatusError) Error() string {
	return fmt.Sprintf("completion API error: %d - %s", e.Status, e.Body)
}

// Kind implements Failure.
func (e *RemoteStatusError) Kind() Kind { return KindRemoteStatus }
func (e *RemoteStatusError) sealed()    {}

// NoResponseError reports a request that was sent without a reply coming
// back: refused or dropped connections, timeouts, cancelled contexts.
type NoResponseError struct {
	Err error
	// Canceled is set when the caller gave up, not the API.
	Canceled bool
}

func (e *NoResponseError) Error() string {
	return "no response received from completion API"
}

func (e *NoResponseError) Unwrap() error { return e.Err }

// Kind implements Failure.
func (e *NoResponseError) Kind() Kind { return KindNoResponse }
func (e *NoResponseError) sealed()    {}

// RequestSetupError reports a failure before the request was dispatched.
type RequestSetupError struct {
	Message string
	Err     error
}

func (e *RequestSetupError) Error() string {
	return "request setup error: " + e.Message
}

func (e *RequestSetupError) Unwrap() error { return e.Err }

// Kind implements Failure.
func (e *RequestSetupError) Kind() Kind { return KindRequestSetup }
func (e *RequestSetupError) sealed()    {}

// Classify returns the kind of a gateway error. Errors that did not come
// from the gateway are reported as request setup failures.
func Classify(err error) Kind {
	if err == nil {
		return KindNone
	}
	var f Failure
	if errors.As(err, &f) {
		return f.Kind()
	}
	return KindRequestSetup
}

// StatusCode returns the remote HTTP status carried by err, if any.
func StatusCode(err error) (int, bool) {
	var remote *RemoteStatusError
	if errors.As(err, &remote) {
		return remote.Status, true
	}
	return 0, false
}

// BreakerFailure reports whether err should count against a circuit
// breaker. Lost replies and remote 5xx do. Client-side mistakes and calls
// abandoned by the caller don't.
func BreakerFailure(err error) bool {
	switch Classify(err) {
	case KindNoResponse:
		var noResp *NoResponseError
		return !errors.As(err, &noResp) || !noResp.Canceled
	case KindRemoteStatus:
		status, _ := StatusCode(err)
		return status >= 500
	default:
		return false
	}
}
