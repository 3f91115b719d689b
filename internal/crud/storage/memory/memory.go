// Package memory is an in-process storage adapter. Tables hold private
// copies of entities; every read hands out fresh copies so callers never
// alias stored state.
package memory

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"

	"github.com/google/uuid"

	"github.com/conduit-lang/crudkit/internal/crud/mapper"
	"github.com/conduit-lang/crudkit/internal/crud/predicate"
	"github.com/conduit-lang/crudkit/internal/crud/storage"
	"github.com/conduit-lang/crudkit/internal/crud/typeinfo"
)

var (
	// ErrDuplicateKey is returned when a created entity reuses an existing ID
	ErrDuplicateKey = errors.New("duplicate key")

	// ErrNotFound is returned when an updated or deleted entity does not exist
	ErrNotFound = errors.New("entity not found")
)

var uuidType = reflect.TypeOf(uuid.UUID{})

type table struct {
	rows   []any
	nextID int64
}

type tables map[reflect.Type]*table

func (t tables) copy() tables {
	out := make(tables, len(t))
	for k, v := range t {
		out[k] = &table{rows: append([]any(nil), v.rows...), nextID: v.nextID}
	}
	return out
}

// Store is the shared backing state
type Store struct {
	mu     sync.RWMutex
	tables tables
	mapper *mapper.Default
}

// New creates a store with tables for the given entity types. Sets for
// other types are created on first use.
func New(entityTypes ...reflect.Type) *Store {
	s := &Store{tables: make(tables), mapper: mapper.New()}
	for _, t := range entityTypes {
		s.tables[typeinfo.Base(t)] = &table{}
	}
	return s
}

// Open implements storage.Opener
func (s *Store) Open(context.Context) (storage.Context, error) {
	return &unitOfWork{store: s}, nil
}

// Len returns the number of committed rows of an entity type
func (s *Store) Len(entityType reflect.Type) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if t, ok := s.tables[typeinfo.Base(entityType)]; ok {
		return len(t.rows)
	}
	return 0
}

func (s *Store) snapshot() tables {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tables.copy()
}

type opKind int

const (
	opCreate opKind = iota
	opUpdate
	opDelete
)

type op struct {
	kind       opKind
	entityType reflect.Type
	entity     any
}

type unitOfWork struct {
	mu     sync.Mutex
	store  *Store
	staged []op
	tx     *transaction
	closed bool
}

type transaction struct {
	uow     *unitOfWork
	working tables
	done    bool
}

// Commit publishes the transaction's working tables
func (t *transaction) Commit() error {
	t.uow.mu.Lock()
	defer t.uow.mu.Unlock()
	if t.done {
		return errors.New("transaction already finished")
	}
	t.done = true
	t.uow.tx = nil

	s := t.uow.store
	s.mu.Lock()
	s.tables = t.working
	s.mu.Unlock()
	return nil
}

// Rollback discards the transaction's working tables
func (t *transaction) Rollback() error {
	t.uow.mu.Lock()
	defer t.uow.mu.Unlock()
	if t.done {
		return nil
	}
	t.done = true
	t.uow.tx = nil
	return nil
}

func (u *unitOfWork) Set(entityType reflect.Type) (storage.Set, error) {
	t := typeinfo.Base(entityType)
	if t == nil || t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("%w: %s", storage.ErrUnknownEntity, typeinfo.Name(entityType))
	}
	return &set{uow: u, entityType: t}, nil
}

func (u *unitOfWork) HasTransaction() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.tx != nil
}

func (u *unitOfWork) BeginTransaction(context.Context) (storage.Transaction, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.closed {
		return nil, storage.ErrClosed
	}
	if u.tx != nil {
		return nil, storage.ErrTransactionActive
	}
	u.tx = &transaction{uow: u, working: u.store.snapshot()}
	return u.tx, nil
}

func (u *unitOfWork) Close() error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.closed = true
	u.staged = nil
	if u.tx != nil {
		u.tx.done = true
		u.tx = nil
	}
	return nil
}

// rows returns the committed rows visible to this unit of work
func (u *unitOfWork) rows(entityType reflect.Type) []any {
	u.mu.Lock()
	tx := u.tx
	u.mu.Unlock()

	if tx != nil {
		if t, ok := tx.working[entityType]; ok {
			return t.rows
		}
		return nil
	}

	u.store.mu.RLock()
	defer u.store.mu.RUnlock()
	if t, ok := u.store.tables[entityType]; ok {
		return append([]any(nil), t.rows...)
	}
	return nil
}

func (u *unitOfWork) stage(o op) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.closed {
		return storage.ErrClosed
	}
	u.staged = append(u.staged, o)
	return nil
}

type assignment struct {
	entity any
	id     reflect.Value
}

// Commit applies the staged operations to a copy of the tables and swaps
// it in only when every operation succeeded
func (u *unitOfWork) Commit(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	u.mu.Lock()
	defer u.mu.Unlock()
	if u.closed {
		return storage.ErrClosed
	}
	staged := u.staged
	u.staged = nil
	if len(staged) == 0 {
		return nil
	}

	s := u.store
	if u.tx == nil {
		s.mu.Lock()
		defer s.mu.Unlock()
	}

	var working tables
	if u.tx != nil {
		working = u.tx.working.copy()
	} else {
		working = s.tables.copy()
	}

	assignments := make([]assignment, 0)
	for _, o := range staged {
		t, ok := working[o.entityType]
		if !ok {
			t = &table{}
			working[o.entityType] = t
		}
		switch o.kind {
		case opCreate:
			row, err := s.mapper.Clone(o.entity)
			if err != nil {
				return err
			}
			id, err := assignID(t, row)
			if err != nil {
				return err
			}
			if id.IsValid() {
				assignments = append(assignments, assignment{entity: o.entity, id: id})
			}
			if find(t, row) >= 0 {
				return fmt.Errorf("%w: %s", ErrDuplicateKey, o.entityType)
			}
			t.rows = append(t.rows, row)

		case opUpdate:
			i := find(t, o.entity)
			if i < 0 {
				return fmt.Errorf("%w: update %s", ErrNotFound, o.entityType)
			}
			row, err := s.mapper.Clone(o.entity)
			if err != nil {
				return err
			}
			t.rows[i] = row

		case opDelete:
			i := find(t, o.entity)
			if i < 0 {
				return fmt.Errorf("%w: delete %s", ErrNotFound, o.entityType)
			}
			t.rows = append(t.rows[:i:i], t.rows[i+1:]...)
		}
	}

	if u.tx != nil {
		u.tx.working = working
	} else {
		s.tables = working
	}

	// generated keys become visible to the caller only after success
	for _, a := range assignments {
		idx, _ := storage.IdentityField(reflect.TypeOf(a.entity))
		reflect.ValueOf(a.entity).Elem().FieldByIndex(idx).Set(a.id)
	}
	return nil
}

// assignID generates an ID for rows whose ID is zero and returns it
func assignID(t *table, row any) (reflect.Value, error) {
	rv := reflect.ValueOf(row).Elem()
	idx, err := storage.IdentityField(rv.Type())
	if err != nil {
		// entities without identity are stored as they are
		return reflect.Value{}, nil
	}
	field := rv.FieldByIndex(idx)

	switch field.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if !field.IsZero() {
			if id := field.Int(); id > t.nextID {
				t.nextID = id
			}
			return reflect.Value{}, nil
		}
		t.nextID++
		field.SetInt(t.nextID)

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		if !field.IsZero() {
			if id := int64(field.Uint()); id > t.nextID {
				t.nextID = id
			}
			return reflect.Value{}, nil
		}
		t.nextID++
		field.SetUint(uint64(t.nextID))

	case reflect.String:
		if !field.IsZero() {
			return reflect.Value{}, nil
		}
		id, err := uuid.NewV7()
		if err != nil {
			return reflect.Value{}, err
		}
		field.SetString(id.String())

	default:
		if field.Type() != uuidType || !field.IsZero() {
			return reflect.Value{}, nil
		}
		id, err := uuid.NewV7()
		if err != nil {
			return reflect.Value{}, err
		}
		field.Set(reflect.ValueOf(id))
	}
	return field, nil
}

// find locates a row by identity
func find(t *table, entity any) int {
	id, err := storage.Identity(entity)
	if err != nil {
		return -1
	}
	for i, row := range t.rows {
		rowID, err := storage.Identity(row)
		if err == nil && predicate.Equivalent(rowID, id) {
			return i
		}
	}
	return -1
}

type set struct {
	uow        *unitOfWork
	entityType reflect.Type
}

func (s *set) EntityType() reflect.Type {
	return s.entityType
}

func (s *set) Query(ctx context.Context, q storage.Query) ([]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	matched, err := predicate.Filter(q.Where, s.uow.rows(s.entityType))
	if err != nil {
		return nil, err
	}
	if err := predicate.Sort(matched, q.OrderBy); err != nil {
		return nil, err
	}

	if q.Skip > 0 {
		if q.Skip >= len(matched) {
			matched = nil
		} else {
			matched = matched[q.Skip:]
		}
	}
	if q.Take > 0 && q.Take < len(matched) {
		matched = matched[:q.Take]
	}

	out := make([]any, len(matched))
	for i, row := range matched {
		cp, err := s.uow.store.mapper.Clone(row)
		if err != nil {
			return nil, err
		}
		out[i] = cp
	}
	return out, nil
}

func (s *set) Count(ctx context.Context, where *predicate.Node) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	matched, err := predicate.Filter(where, s.uow.rows(s.entityType))
	if err != nil {
		return 0, err
	}
	return len(matched), nil
}

func (s *set) check(entity any) error {
	rv := reflect.ValueOf(entity)
	if rv.Kind() != reflect.Pointer || rv.IsNil() || rv.Elem().Type() != s.entityType {
		return fmt.Errorf("%w: set of %s given %T", storage.ErrUnknownEntity, s.entityType, entity)
	}
	return nil
}

func (s *set) stageAll(kind opKind, entities []any) error {
	for _, e := range entities {
		if err := s.check(e); err != nil {
			return err
		}
		if err := s.uow.stage(op{kind: kind, entityType: s.entityType, entity: e}); err != nil {
			return err
		}
	}
	return nil
}

func (s *set) CreateOne(_ context.Context, entity any) error {
	return s.stageAll(opCreate, []any{entity})
}

func (s *set) CreateMany(_ context.Context, entities []any) error {
	return s.stageAll(opCreate, entities)
}

func (s *set) UpdateOne(_ context.Context, entity any) error {
	return s.stageAll(opUpdate, []any{entity})
}

func (s *set) UpdateMany(_ context.Context, entities []any) error {
	return s.stageAll(opUpdate, entities)
}

func (s *set) DeleteOne(_ context.Context, entity any) error {
	return s.stageAll(opDelete, []any{entity})
}

func (s *set) DeleteMany(_ context.Context, entities []any) error {
	return s.stageAll(opDelete, entities)
}
