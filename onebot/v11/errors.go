package v11

import "fmt"

// NetworkError is returned when a call could not reach the bot at all: the
// connection dropped, the HTTP request failed, or no reply arrived before
// the timeout elapsed.
type NetworkError struct {
	Message string
	Err     error
}

func (e *NetworkError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("onebot v11 network error: %s: %v", e.Message, e.Err)
	}
	return fmt.Sprintf("onebot v11 network error: %s", e.Message)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// ApiNotAvailable is returned when calling an action on a bot whose
// connection has no way to carry API calls (e.g. an HTTP-push-only client
// with no configured api_root).
type ApiNotAvailable struct {
	Action string
}

func (e *ApiNotAvailable) Error() string {
	return fmt.Sprintf("onebot v11: api %q not available for this connection", e.Action)
}

// ActionFailed is returned when the bot replies to a call with
// status == "failed". Retcode and Wording mirror the reply payload.
type ActionFailed struct {
	Retcode int64
	Wording string
}

func (e *ActionFailed) Error() string {
	if e.Wording != "" {
		return fmt.Sprintf("onebot v11: action failed, retcode=%d: %s", e.Retcode, e.Wording)
	}
	return fmt.Sprintf("onebot v11: action failed, retcode=%d", e.Retcode)
}

// NoLogException marks an error that should suppress the adapter's default
// failure logging for an event handler, because the handler itself already
// reported the problem (or chose to ignore it silently).
type NoLogException struct {
	Err error
}

func (e *NoLogException) Error() string {
	if e.Err == nil {
		return "onebot v11: no-log exception"
	}
	return e.Err.Error()
}

func (e *NoLogException) Unwrap() error { return e.Err }
