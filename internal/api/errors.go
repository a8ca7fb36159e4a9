package api

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/valyala/fasthttp"
)

type ErrorKind int

const (
	KindTransient ErrorKind = iota
	KindRateLimited
	KindNotFound
	KindFatal
)

func (k ErrorKind) String() string {
	switch k {
	case KindRateLimited:
		return "rate_limited"
	case KindNotFound:
		return "not_found"
	case KindFatal:
		return "fatal"
	default:
		return "transient"
	}
}

// Error is the only error type the client returns to callers.
type Error struct {
	Kind       ErrorKind
	StatusCode int
	RetryAfter time.Duration // zero when the server gave no hint
	Op         string
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("riot api %s: %s (status %d): %v", e.Op, e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("riot api %s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf reports the classification of err. Unclassified errors count as
// transient.
func KindOf(err error) ErrorKind {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	return KindTransient
}

// RetryAfterOf returns the server's retry hint carried by err, if any.
func RetryAfterOf(err error) time.Duration {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.RetryAfter
	}
	return 0
}

func IsNotFound(err error) bool {
	return KindOf(err) == KindNotFound
}

// classifyStatus maps a non-200 response to an Error.
func classifyStatus(op string, resp *fasthttp.Response) *Error {
	status := resp.StatusCode()
	e := &Error{
		Op:         op,
		StatusCode: status,
		Err:        fmt.Errorf("unexpected status: %d", status),
	}

	switch {
	case status == fasthttp.StatusTooManyRequests:
		e.Kind = KindRateLimited
		e.RetryAfter = parseRetryAfter(string(resp.Header.Peek("Retry-After")))
	case status == fasthttp.StatusNotFound:
		e.Kind = KindNotFound
	case status == fasthttp.StatusBadRequest,
		status == fasthttp.StatusUnauthorized,
		status == fasthttp.StatusForbidden:
		e.Kind = KindFatal
	case status >= 500, status == fasthttp.StatusRequestTimeout:
		e.Kind = KindTransient
	default:
		e.Kind = KindFatal
	}
	return e
}

// classifyTransport wraps errors raised before a response was read.
// Timeouts, refused connections and cancelled contexts are all transient.
func classifyTransport(op string, err error) *Error {
	return &Error{Kind: KindTransient, Op: op, Err: err}
}

func decodeError(op string, err error) *Error {
	return &Error{Kind: KindFatal, Op: op, Err: fmt.Errorf("failed to decode response: %w", err)}
}

func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if at, err := time.Parse(time.RFC1123, v); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}
