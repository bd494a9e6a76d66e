package errutil

import (
	"fmt"
)

type Detail struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type BaseError struct {
	Code    CoreStatus `json:"code"`
	Message string     `json:"message"`
	Details []Detail   `json:"details,omitempty"`
	Err     error      `json:"-"`
}

func (e BaseError) Status() CoreStatus {
	return e.Code
}

func (e BaseError) Unwrap() error {
	return e.Err
}

func (e BaseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

type Option func(*BaseError)

func WithDetails(details ...Detail) Option {
	return func(be *BaseError) { be.Details = details }
}

func WithErr(err error) Option {
	return func(be *BaseError) { be.Err = err }
}

func New(code CoreStatus, message string, opts ...Option) error {
	be := BaseError{Code: code, Message: message}
	for _, opt := range opts {
		opt(&be)
	}
	return be
}

func NotFound(msg string, err error, options ...Option) error {
	return New(StatusNotFound, msg, append(options, WithErr(err))...)
}

func Conflict(msg string, err error, options ...Option) error {
	return New(StatusConflict, msg, append(options, WithErr(err))...)
}

func BadRequest(msg string, err error, options ...Option) error {
	return New(StatusBadRequest, msg, append(options, WithErr(err))...)
}

// NotReady marks a "not available yet" condition: retry fast, no backoff.
func NotReady(msg string, err error, options ...Option) error {
	return New(StatusNotReady, msg, append(options, WithErr(err))...)
}

// FailedPrecondition marks a permanent state failure such as a corrupted
// credential batch. Never auto-retried.
func FailedPrecondition(msg string, err error, options ...Option) error {
	return New(StatusFailedPrecondition, msg, append(options, WithErr(err))...)
}

// Exhausted marks resource exhaustion: not-enough-funds, retry ceiling.
func Exhausted(msg string, err error, options ...Option) error {
	return New(StatusExhausted, msg, append(options, WithErr(err))...)
}

// Unavailable marks a transient server-side failure: retry with backoff.
func Unavailable(msg string, err error, options ...Option) error {
	return New(StatusUnavailable, msg, append(options, WithErr(err))...)
}

func Timeout(msg string, err error, options ...Option) error {
	return New(StatusTimeout, msg, append(options, WithErr(err))...)
}

func Internal(msg string, err error, options ...Option) error {
	return New(StatusInternal, msg, append(options, WithErr(err))...)
}

// StatusOf extracts the CoreStatus from err, or StatusInternal when err is
// not a BaseError.
func StatusOf(err error) CoreStatus {
	if err == nil {
		return ""
	}
	if be, ok := err.(BaseError); ok {
		return be.Status()
	}
	return StatusInternal
}

// IsPermanent reports whether err belongs to the non-retryable bucket.
func IsPermanent(err error) bool {
	switch StatusOf(err) {
	case StatusBadRequest, StatusConflict, StatusUnprocessable, StatusFailedPrecondition, StatusExhausted:
		return true
	}
	return false
}

// ShouldBackoff reports whether err belongs to the backoff-retry bucket, as
// opposed to the fast-retry bucket.
func ShouldBackoff(err error) bool {
	switch StatusOf(err) {
	case StatusUnavailable, StatusTimeout, StatusInternal:
		return true
	}
	return false
}
