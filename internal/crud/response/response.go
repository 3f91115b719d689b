// Package response defines what the engine hands back for every request:
// a payload, structured errors, or a canceled outcome.
package response

import (
	"fmt"
	"strings"
)

// Error is one structured error of a failed request
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Cause   error  `json:"-"`
}

// Error implements the error interface
func (e Error) Error() string {
	if e.Code == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause
func (e Error) Unwrap() error {
	return e.Cause
}

// Response is the outcome of one request. Requests never panic or return
// errors across the engine boundary; failures are carried here instead.
type Response struct {
	Result   any     `json:"result,omitempty"`
	Errors   []Error `json:"errors,omitempty"`
	Canceled bool    `json:"canceled,omitempty"`
}

// Success wraps a result; nil is a payload-less success
func Success(result any) Response {
	return Response{Result: result}
}

// Fail builds an error response
func Fail(errs ...Error) Response {
	return Response{Errors: errs}
}

// Canceled builds the dedicated cancellation outcome
func Canceled() Response {
	return Response{Canceled: true}
}

// OK reports whether the request succeeded
func (r Response) OK() bool {
	return !r.Canceled && len(r.Errors) == 0
}

// HasCode reports whether any error carries code
func (r Response) HasCode(code string) bool {
	for _, e := range r.Errors {
		if e.Code == code {
			return true
		}
	}
	return false
}

// Err folds the response into a Go error, nil on success
func (r Response) Err() error {
	switch {
	case r.Canceled:
		return ErrCanceled
	case len(r.Errors) == 0:
		return nil
	case len(r.Errors) == 1:
		return r.Errors[0]
	}
	msgs := make([]string, len(r.Errors))
	for i, e := range r.Errors {
		msgs[i] = e.Error()
	}
	return fmt.Errorf("%d errors: %s", len(r.Errors), strings.Join(msgs, "; "))
}

// ErrCanceled is returned by Err for canceled responses
var ErrCanceled = canceledError{}

type canceledError struct{}

func (canceledError) Error() string { return "request canceled" }

// As extracts a typed result. It reports false for failures and for
// payload-less or mismatched results.
func As[T any](r Response) (T, bool) {
	var zero T
	if !r.OK() || r.Result == nil {
		return zero, false
	}
	v, ok := r.Result.(T)
	return v, ok
}

// Page is the result of a paged query
type Page[T any] struct {
	Items          []T `json:"items"`
	PageNumber     int `json:"page_number"`
	PageSize       int `json:"page_size"`
	PageCount      int `json:"page_count"`
	TotalItemCount int `json:"total_item_count"`
}
