package backend

import (
	"fmt"
	"net/http"
)

// ErrorKind is the coarse class of a failed backend call.
type ErrorKind int

const (
	KindNone ErrorKind = iota
	KindBadRequest
	KindUnauthorized
	KindRateLimited
	KindServer
	KindUnknown
)

func (k ErrorKind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindBadRequest:
		return "bad_request"
	case KindUnauthorized:
		return "unauthorized"
	case KindRateLimited:
		return "rate_limited"
	case KindServer:
		return "server_error"
	default:
		return "unknown"
	}
}

// Error is a failed backend call.
type Error struct {
	Kind    ErrorKind
	Status  int
	Message string
}

func (e *Error) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("backend %s: %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("backend %s (%d): %s", e.Kind, e.Status, e.Message)
}

func classify(status int) ErrorKind {
	switch status {
	case http.StatusBadRequest, http.StatusNotFound, http.StatusConflict, http.StatusUnprocessableEntity:
		return KindBadRequest
	case http.StatusUnauthorized, http.StatusForbidden:
		return KindUnauthorized
	case http.StatusTooManyRequests:
		return KindRateLimited
	}
	if status >= 500 && status < 600 {
		return KindServer
	}
	return KindUnknown
}
