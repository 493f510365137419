package hris

import (
	"context"
	"errors"
	"net"
	"net/url"
	"strconv"
	"syscall"

	"github.com/sony/gobreaker"
)

type ErrorClass string

const (
	ClassTimeout           ErrorClass = "timeout"
	ClassConnectionRefused ErrorClass = "connection_refused"
	ClassDNS               ErrorClass = "dns"
	ClassCircuitOpen       ErrorClass = "circuit_open"
	ClassServerError       ErrorClass = "server_error"
	ClassCanceled          ErrorClass = "canceled"
	ClassUnknown           ErrorClass = "unknown"
)

// serverStatusError marks a 5xx answer so the breaker counts it as a
// failure while the caller still sees the status.
type serverStatusError struct {
	status int
	body   []byte
}

func (e *serverStatusError) Error() string {
	return "hris server error: " + strconv.Itoa(e.status)
}

// Classify maps a transport-level error to a coarse class used in logs and
// metrics.
func Classify(err error) ErrorClass {
	if err == nil {
		return ""
	}

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return ClassCircuitOpen
	}
	if errors.Is(err, context.Canceled) {
		return ClassCanceled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ClassTimeout
	}

	var statusErr *serverStatusError
	if errors.As(err, &statusErr) {
		return ClassServerError
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return ClassDNS
	}
	if errors.Is(err, syscall.ECONNREFUSED) {
		return ClassConnectionRefused
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Timeout() {
		return ClassTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ClassTimeout
	}

	return ClassUnknown
}

// IsTransient reports whether retrying later could succeed.
func IsTransient(err error) bool {
	switch Classify(err) {
	case ClassTimeout, ClassConnectionRefused, ClassDNS, ClassCircuitOpen, ClassServerError:
		return true
	default:
		return false
	}
}
