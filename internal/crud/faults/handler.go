package faults

import (
	"context"

	"github.com/conduit-lang/crudkit/internal/crud/response"
)

// Handler turns a fault into a response
type Handler interface {
	Handle(ctx context.Context, f *Fault) response.Response
}

// HandlerFunc adapts a function to Handler
type HandlerFunc func(ctx context.Context, f *Fault) response.Response

// Handle implements Handler
func (fn HandlerFunc) Handle(ctx context.Context, f *Fault) response.Response {
	return fn(ctx, f)
}

// DefaultHandler escalates every fault as a structured error, except
// cancellation, which resolves to its own outcome
type DefaultHandler struct{}

// Handle implements Handler
func (DefaultHandler) Handle(_ context.Context, f *Fault) response.Response {
	if f.Kind == KindRequestCanceled {
		return response.Canceled()
	}
	return response.Fail(ToError(f))
}

// ToError converts a fault into a response error
func ToError(f *Fault) response.Error {
	return response.Error{
		Code:    f.Kind.Code(),
		Message: f.Error(),
		Cause:   f,
	}
}
