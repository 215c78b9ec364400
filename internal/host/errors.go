package host

import (
	"errors"
	"fmt"
	"net/http"
)

// RPCError is returned when a host call fails
type RPCError struct {
	Call      string
	Status    int // HTTP status, 0 for transport failures
	Message   string
	Transient bool
	Err       error
}

func (e *RPCError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("%s: %s", e.Call, e.Message)
	}
	return fmt.Sprintf("%s: host returned %d: %s", e.Call, e.Status, e.Message)
}

func (e *RPCError) Unwrap() error {
	return e.Err
}

// IsTransient reports whether err is an RPCError worth retrying
func IsTransient(err error) bool {
	var rpcErr *RPCError
	if errors.As(err, &rpcErr) {
		return rpcErr.Transient
	}
	return false
}

// transientStatus reports whether a response status may succeed on retry
func transientStatus(status int) bool {
	switch {
	case status == http.StatusRequestTimeout, status == http.StatusTooManyRequests:
		return true
	case status == http.StatusNotImplemented:
		return false
	case status >= 500:
		return true
	default:
		return false
	}
}
