// Package faults defines the recoverable error taxonomy of request
// execution and the handlers that turn faults into responses.
package faults

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/conduit-lang/crudkit/internal/crud/typeinfo"
)

// Kind identifies a fault
type Kind int

const (
	KindRequestFailed Kind = iota
	KindFailedToFind
	KindRequestCanceled
	KindHookFailed
	KindCreateEntityFailed
	KindUpdateEntityFailed
	KindCreateResultFailed
)

// Sentinels matched by errors.Is against any Fault of the same kind
var (
	ErrRequestFailed      = errors.New("request failed")
	ErrFailedToFind       = errors.New("failed to find entity")
	ErrRequestCanceled    = errors.New("request canceled")
	ErrHookFailed         = errors.New("hook failed")
	ErrCreateEntityFailed = errors.New("failed to create entity")
	ErrUpdateEntityFailed = errors.New("failed to update entity")
	ErrCreateResultFailed = errors.New("failed to create result")
)

// String returns the name of the kind
func (k Kind) String() string {
	switch k {
	case KindFailedToFind:
		return "FailedToFind"
	case KindRequestCanceled:
		return "RequestCanceled"
	case KindHookFailed:
		return "HookFailed"
	case KindCreateEntityFailed:
		return "CreateEntityFailed"
	case KindUpdateEntityFailed:
		return "UpdateEntityFailed"
	case KindCreateResultFailed:
		return "CreateResultFailed"
	default:
		return "RequestFailed"
	}
}

// Code is the machine readable error code used in responses
func (k Kind) Code() string {
	switch k {
	case KindFailedToFind:
		return "failed_to_find"
	case KindRequestCanceled:
		return "request_canceled"
	case KindHookFailed:
		return "hook_failed"
	case KindCreateEntityFailed:
		return "create_entity_failed"
	case KindUpdateEntityFailed:
		return "update_entity_failed"
	case KindCreateResultFailed:
		return "create_result_failed"
	default:
		return "request_failed"
	}
}

func (k Kind) sentinel() error {
	switch k {
	case KindFailedToFind:
		return ErrFailedToFind
	case KindRequestCanceled:
		return ErrRequestCanceled
	case KindHookFailed:
		return ErrHookFailed
	case KindCreateEntityFailed:
		return ErrCreateEntityFailed
	case KindUpdateEntityFailed:
		return ErrUpdateEntityFailed
	case KindCreateResultFailed:
		return ErrCreateResultFailed
	default:
		return ErrRequestFailed
	}
}

// Fault is a classified execution failure with its context
type Fault struct {
	Kind       Kind
	EntityType reflect.Type
	Items      []any
	Entity     any
	Hook       string
	Cause      error
}

// Error implements the error interface
func (f *Fault) Error() string {
	var b strings.Builder
	b.WriteString(f.Kind.sentinel().Error())
	if f.Hook != "" {
		fmt.Fprintf(&b, " (hook %s)", f.Hook)
	}
	if f.EntityType != nil {
		fmt.Fprintf(&b, " [%s]", f.EntityType)
	}
	if f.Cause != nil {
		fmt.Fprintf(&b, ": %v", f.Cause)
	}
	return b.String()
}

// Unwrap returns the cause
func (f *Fault) Unwrap() error {
	return f.Cause
}

// Is matches the sentinel of the fault's kind
func (f *Fault) Is(target error) bool {
	return target == f.Kind.sentinel()
}

// Failed is the generic fault
func Failed(cause error) *Fault {
	return &Fault{Kind: KindRequestFailed, Cause: cause}
}

// FailedFor is the generic fault attributed to an entity type
func FailedFor(entityType reflect.Type, cause error) *Fault {
	return &Fault{Kind: KindRequestFailed, EntityType: entityType, Cause: cause}
}

// FailedToFind reports that no entity matched
func FailedToFind(entityType reflect.Type) *Fault {
	return &Fault{Kind: KindFailedToFind, EntityType: entityType}
}

// Canceled reports cooperative cancellation
func Canceled(cause error) *Fault {
	if cause == nil {
		cause = context.Canceled
	}
	return &Fault{Kind: KindRequestCanceled, Cause: cause}
}

// HookFailed reports a failing hook and which one it was
func HookFailed(hook string, entityType reflect.Type, cause error) *Fault {
	return &Fault{Kind: KindHookFailed, Hook: hook, EntityType: entityType, Cause: cause}
}

// CreateEntityFailed reports a creator failure with the offending item
func CreateEntityFailed(entityType reflect.Type, item any, cause error) *Fault {
	return &Fault{Kind: KindCreateEntityFailed, EntityType: entityType, Items: []any{item}, Cause: cause}
}

// UpdateEntityFailed reports an updater failure with the item and entity
func UpdateEntityFailed(entityType reflect.Type, item, entity any, cause error) *Fault {
	return &Fault{Kind: KindUpdateEntityFailed, EntityType: entityType, Items: []any{item}, Entity: entity, Cause: cause}
}

// CreateResultFailed reports a result creator failure
func CreateResultFailed(entityType reflect.Type, entity any, cause error) *Fault {
	return &Fault{Kind: KindCreateResultFailed, EntityType: entityType, Entity: entity, Cause: cause}
}

// IsCancellation reports whether err stems from context cancellation
func IsCancellation(err error) bool {
	if err == nil {
		return false
	}
	var f *Fault
	if errors.As(err, &f) && f.Kind == KindRequestCanceled {
		return true
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// From classifies any error. Cancellation always wins so that it is never
// reported as another kind; existing faults are kept as they are.
func From(err error) *Fault {
	if err == nil {
		return nil
	}
	var f *Fault
	if errors.As(err, &f) {
		if f.Kind != KindRequestCanceled && IsCancellation(f.Cause) {
			return Canceled(f.Cause)
		}
		return f
	}
	if IsCancellation(err) {
		return Canceled(err)
	}
	return Failed(err)
}

// Wrap attaches an entity type to errors that are not faults yet
func Wrap(entityType reflect.Type, err error) error {
	if err == nil {
		return nil
	}
	var f *Fault
	if errors.As(err, &f) {
		return err
	}
	if IsCancellation(err) {
		return Canceled(err)
	}
	return FailedFor(entityType, err)
}

// ConfigError is raised while building a request configuration
type ConfigError struct {
	RequestType reflect.Type
	Profile     string
	Err         error
}

// Error implements the error interface
func (e *ConfigError) Error() string {
	if e.Profile != "" {
		return fmt.Sprintf("invalid configuration for %s (profile %s): %v", typeinfo.Name(e.RequestType), e.Profile, e.Err)
	}
	return fmt.Sprintf("invalid configuration for %s: %v", typeinfo.Name(e.RequestType), e.Err)
}

// Unwrap returns the underlying error
func (e *ConfigError) Unwrap() error {
	return e.Err
}
