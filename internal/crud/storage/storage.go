// Package storage is the adapter contract the engine persists through.
// Every request works on its own unit of work: reads go straight to the
// backend, writes are staged and applied together by one Commit.
package storage

import (
	"context"
	"errors"
	"fmt"
	"reflect"

	"github.com/conduit-lang/crudkit/internal/crud/predicate"
	"github.com/conduit-lang/crudkit/internal/crud/typeinfo"
)

var (
	// ErrUnknownEntity is returned when no set exists for an entity type
	ErrUnknownEntity = errors.New("unknown entity type")

	// ErrNoIdentity is returned when an entity type has no ID member
	ErrNoIdentity = errors.New("entity has no identity field")

	// ErrClosed is returned when a closed unit of work is used
	ErrClosed = errors.New("storage context closed")

	// ErrTransactionActive is returned when a second transaction is begun
	ErrTransactionActive = errors.New("transaction already active")
)

// Query describes a read. Take <= 0 means no limit.
type Query struct {
	Where   *predicate.Node
	OrderBy []predicate.Order
	Skip    int
	Take    int
}

// Set is the queryable collection of one entity type. Entities are
// pointers to structs; mutations are staged until Commit.
type Set interface {
	EntityType() reflect.Type
	Query(ctx context.Context, q Query) ([]any, error)
	Count(ctx context.Context, where *predicate.Node) (int, error)
	CreateOne(ctx context.Context, entity any) error
	CreateMany(ctx context.Context, entities []any) error
	UpdateOne(ctx context.Context, entity any) error
	UpdateMany(ctx context.Context, entities []any) error
	DeleteOne(ctx context.Context, entity any) error
	DeleteMany(ctx context.Context, entities []any) error
}

// Transaction is an explicit transaction spanning several commits
type Transaction interface {
	Commit() error
	Rollback() error
}

// Context is one unit of work
type Context interface {
	Set(entityType reflect.Type) (Set, error)
	// Commit applies every staged mutation atomically. Generated keys are
	// written back into the staged entities.
	Commit(ctx context.Context) error
	BeginTransaction(ctx context.Context) (Transaction, error)
	HasTransaction() bool
	Close() error
}

// Opener hands out units of work
type Opener interface {
	Open(ctx context.Context) (Context, error)
}

// contextKey is a type for context keys to avoid collisions
type contextKey string

const (
	// contextKeyStorage is the key for storing a unit of work in context
	contextKeyStorage contextKey = "crudkit:storage"
)

// FromContext retrieves an ambient unit of work from the context
func FromContext(ctx context.Context) (Context, bool) {
	sc, ok := ctx.Value(contextKeyStorage).(Context)
	return sc, ok
}

// WithContext returns a new context carrying the unit of work. Requests
// sent with it share the unit of work instead of opening their own.
func WithContext(ctx context.Context, sc Context) context.Context {
	return context.WithValue(ctx, contextKeyStorage, sc)
}

// IdentityField returns the index of the ID field of an entity type
func IdentityField(entityType reflect.Type) ([]int, error) {
	t := typeinfo.Base(entityType)
	if t == nil || t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("%w: %s", ErrNoIdentity, typeinfo.Name(entityType))
	}
	sf, ok := t.FieldByName("ID")
	if !ok || !sf.IsExported() {
		return nil, fmt.Errorf("%w: %s", ErrNoIdentity, t)
	}
	return sf.Index, nil
}

// Identity reads the ID of an entity
func Identity(entity any) (any, error) {
	rv := reflect.Indirect(reflect.ValueOf(entity))
	if !rv.IsValid() {
		return nil, fmt.Errorf("%w: nil entity", ErrNoIdentity)
	}
	idx, err := IdentityField(rv.Type())
	if err != nil {
		return nil, err
	}
	return rv.FieldByIndex(idx).Interface(), nil
}
