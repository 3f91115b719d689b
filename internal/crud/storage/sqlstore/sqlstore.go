// Package sqlstore is a database/sql storage adapter for PostgreSQL and
// SQLite. Predicates are lowered to parameterised WHERE clauses; staged
// writes run in one transaction on Commit.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" driver
	_ "github.com/lib/pq"              // registers the "postgres" driver
	_ "github.com/mattn/go-sqlite3"    // registers the "sqlite3" driver

	"github.com/conduit-lang/crudkit/internal/crud/predicate"
	"github.com/conduit-lang/crudkit/internal/crud/storage"
	"github.com/conduit-lang/crudkit/internal/crud/typeinfo"
)

var (
	// ErrUnsupportedDriver is returned by Open for unknown driver names
	ErrUnsupportedDriver = errors.New("unsupported database driver")
)

// Dialect captures the SQL differences between backends
type Dialect struct {
	Name        string
	Placeholder predicate.Placeholder
	// Returning reports whether INSERT ... RETURNING is available
	Returning bool
}

var (
	// Postgres uses $n placeholders and RETURNING
	Postgres = Dialect{Name: "postgres", Placeholder: predicate.Dollar, Returning: true}

	// SQLite uses ? placeholders and LastInsertId
	SQLite = Dialect{Name: "sqlite3", Placeholder: predicate.Question, Returning: false}
)

// DialectFor maps a database/sql driver name to its dialect
func DialectFor(driver string) (Dialect, error) {
	switch driver {
	case "pgx", "postgres":
		return Postgres, nil
	case "sqlite3":
		return SQLite, nil
	}
	return Dialect{}, fmt.Errorf("%w: %s", ErrUnsupportedDriver, driver)
}

// Store adapts a *sql.DB
type Store struct {
	db      *sql.DB
	dialect Dialect
	tables  sync.Map // reflect.Type -> *table
}

// New wraps an open database
func New(db *sql.DB, dialect Dialect) *Store {
	return &Store{db: db, dialect: dialect}
}

// Open connects with one of the registered drivers: pgx, postgres or sqlite3
func Open(driver, dsn string) (*Store, error) {
	dialect, err := DialectFor(driver)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return New(db, dialect), nil
}

// DB returns the database connection
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}

// Open implements storage.Opener
func (s *Store) Open(context.Context) (storage.Context, error) {
	return &unitOfWork{store: s}, nil
}

func (s *Store) table(entityType reflect.Type) (*table, error) {
	if cached, ok := s.tables.Load(entityType); ok {
		return cached.(*table), nil
	}
	t, err := mapTable(entityType)
	if err != nil {
		return nil, err
	}
	actual, _ := s.tables.LoadOrStore(entityType, t)
	return actual.(*table), nil
}

// queryer is satisfied by both *sql.DB and *sql.Tx
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type statement struct {
	table  *table
	kind   string
	entity any
}

type unitOfWork struct {
	mu     sync.Mutex
	store  *Store
	staged []statement
	tx     *sql.Tx
	closed bool
}

func (u *unitOfWork) conn() queryer {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.tx != nil {
		return u.tx
	}
	return u.store.db
}

func (u *unitOfWork) Set(entityType reflect.Type) (storage.Set, error) {
	t := typeinfo.Base(entityType)
	if t == nil {
		return nil, fmt.Errorf("%w: nil type", storage.ErrUnknownEntity)
	}
	tbl, err := u.store.table(t)
	if err != nil {
		return nil, err
	}
	return &set{uow: u, entityType: t, table: tbl}, nil
}

func (u *unitOfWork) HasTransaction() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.tx != nil
}

type transaction struct {
	uow *unitOfWork
	tx  *sql.Tx
}

func (t *transaction) Commit() error {
	t.uow.release(t.tx)
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", ConvertDBError(err))
	}
	return nil
}

func (t *transaction) Rollback() error {
	t.uow.release(t.tx)
	if err := t.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("failed to roll back transaction: %w", err)
	}
	return nil
}

func (u *unitOfWork) release(tx *sql.Tx) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.tx == tx {
		u.tx = nil
	}
}

func (u *unitOfWork) BeginTransaction(ctx context.Context) (storage.Transaction, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.closed {
		return nil, storage.ErrClosed
	}
	if u.tx != nil {
		return nil, storage.ErrTransactionActive
	}
	tx, err := u.store.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	u.tx = tx
	return &transaction{uow: u, tx: tx}, nil
}

func (u *unitOfWork) Close() error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.closed = true
	u.staged = nil
	if u.tx != nil {
		err := u.tx.Rollback()
		u.tx = nil
		if err != nil && !errors.Is(err, sql.ErrTxDone) {
			return err
		}
	}
	return nil
}

func (u *unitOfWork) stage(st statement) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.closed {
		return storage.ErrClosed
	}
	u.staged = append(u.staged, st)
	return nil
}

type assignment struct {
	field reflect.Value
	value reflect.Value
}

// Commit executes the staged statements. Inside an explicit transaction
// they join it; otherwise they run in a transaction of their own.
func (u *unitOfWork) Commit(ctx context.Context) error {
	u.mu.Lock()
	if u.closed {
		u.mu.Unlock()
		return storage.ErrClosed
	}
	staged := u.staged
	u.staged = nil
	ambient := u.tx
	u.mu.Unlock()

	if len(staged) == 0 {
		return nil
	}

	tx := ambient
	if tx == nil {
		var err error
		tx, err = u.store.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		defer tx.Rollback()
	}

	assignments := make([]assignment, 0)
	for _, st := range staged {
		var err error
		switch st.kind {
		case "insert":
			var a *assignment
			a, err = u.insert(ctx, tx, st)
			if a != nil {
				assignments = append(assignments, *a)
			}
		case "update":
			err = u.update(ctx, tx, st)
		case "delete":
			err = u.delete(ctx, tx, st)
		}
		if err != nil {
			return err
		}
	}

	if ambient == nil {
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit transaction: %w", ConvertDBError(err))
		}
	}

	for _, a := range assignments {
		a.field.Set(a.value)
	}
	return nil
}

func (u *unitOfWork) insert(ctx context.Context, tx *sql.Tx, st statement) (*assignment, error) {
	t := st.table
	rv := reflect.ValueOf(st.entity).Elem()
	idField := rv.FieldByIndex(t.idIndex)

	var generated reflect.Value
	if idField.IsZero() {
		switch {
		case idField.Kind() == reflect.String:
			id, err := uuid.NewV7()
			if err != nil {
				return nil, err
			}
			generated = reflect.ValueOf(id.String()).Convert(idField.Type())
		case idField.Type() == reflect.TypeOf(uuid.UUID{}):
			id, err := uuid.NewV7()
			if err != nil {
				return nil, err
			}
			generated = reflect.ValueOf(id)
		}
	}

	// database generated keys leave the id column out of the insert
	skipID := idField.IsZero() && !generated.IsValid()
	columns := t.columnNames(skipID)
	values := t.values(rv, skipID)
	if generated.IsValid() {
		for i, c := range t.columnNames(false) {
			if c == t.idColumn {
				values[i] = generated.Interface()
			}
		}
	}

	placeholders := make([]string, len(columns))
	for i := range columns {
		placeholders[i] = u.store.dialect.Placeholder(i + 1)
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		t.name, strings.Join(columns, ", "), strings.Join(placeholders, ", "))

	if generated.IsValid() {
		if _, err := tx.ExecContext(ctx, query, values...); err != nil {
			return nil, fmt.Errorf("failed to insert record: %w", ConvertDBError(err))
		}
		return &assignment{field: idField, value: generated}, nil
	}
	if !skipID {
		if _, err := tx.ExecContext(ctx, query, values...); err != nil {
			return nil, fmt.Errorf("failed to insert record: %w", ConvertDBError(err))
		}
		return nil, nil
	}

	id := reflect.New(idField.Type())
	if u.store.dialect.Returning {
		query += " RETURNING " + t.idColumn
		if err := tx.QueryRowContext(ctx, query, values...).Scan(id.Interface()); err != nil {
			return nil, fmt.Errorf("failed to insert record: %w", ConvertDBError(err))
		}
		return &assignment{field: idField, value: id.Elem()}, nil
	}

	res, err := tx.ExecContext(ctx, query, values...)
	if err != nil {
		return nil, fmt.Errorf("failed to insert record: %w", ConvertDBError(err))
	}
	last, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to read generated key: %w", err)
	}
	if !reflect.ValueOf(last).CanConvert(idField.Type()) {
		return nil, fmt.Errorf("generated key %d does not fit %s", last, idField.Type())
	}
	return &assignment{field: idField, value: reflect.ValueOf(last).Convert(idField.Type())}, nil
}

func (u *unitOfWork) update(ctx context.Context, tx *sql.Tx, st statement) error {
	t := st.table
	rv := reflect.ValueOf(st.entity).Elem()
	columns := t.columnNames(true)
	values := t.values(rv, true)

	sets := make([]string, len(columns))
	for i, c := range columns {
		sets[i] = fmt.Sprintf("%s = %s", c, u.store.dialect.Placeholder(i+1))
	}
	values = append(values, rv.FieldByIndex(t.idIndex).Interface())
	query := fmt.Sprintf("UPDATE %s SET %s WHERE %s = %s",
		t.name, strings.Join(sets, ", "), t.idColumn, u.store.dialect.Placeholder(len(values)))

	res, err := tx.ExecContext(ctx, query, values...)
	if err != nil {
		return fmt.Errorf("failed to update record: %w", ConvertDBError(err))
	}
	return expectRow(res, "update", t.name)
}

func (u *unitOfWork) delete(ctx context.Context, tx *sql.Tx, st statement) error {
	t := st.table
	rv := reflect.ValueOf(st.entity).Elem()
	query := fmt.Sprintf("DELETE FROM %s WHERE %s = %s", t.name, t.idColumn, u.store.dialect.Placeholder(1))

	res, err := tx.ExecContext(ctx, query, rv.FieldByIndex(t.idIndex).Interface())
	if err != nil {
		return fmt.Errorf("failed to delete record: %w", ConvertDBError(err))
	}
	return expectRow(res, "delete", t.name)
}

func expectRow(res sql.Result, op, table string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return nil
	}
	if n == 0 {
		return fmt.Errorf("%w: %s %s", ErrNoRowsAffected, op, table)
	}
	return nil
}

type set struct {
	uow        *unitOfWork
	entityType reflect.Type
	table      *table
}

func (s *set) EntityType() reflect.Type {
	return s.entityType
}

func (s *set) where(n *predicate.Node, counter *int, args *[]any) (string, error) {
	if n == nil {
		return "", nil
	}
	clause, err := n.ToSQL(s.uow.store.dialect.Placeholder, counter, args)
	if err != nil || clause == "" {
		return "", err
	}
	return " WHERE " + clause, nil
}

// Query implements storage.Set
func (s *set) Query(ctx context.Context, q storage.Query) ([]any, error) {
	counter := 1
	args := make([]any, 0)

	where, err := s.where(q.Where, &counter, &args)
	if err != nil {
		return nil, err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "SELECT %s FROM %s%s", strings.Join(s.table.columnNames(false), ", "), s.table.name, where)

	if len(q.OrderBy) > 0 {
		orderBy, err := predicate.OrderToSQL(q.OrderBy)
		if err != nil {
			return nil, err
		}
		b.WriteString(" ORDER BY " + orderBy)
	}
	if q.Take > 0 {
		fmt.Fprintf(&b, " LIMIT %d", q.Take)
	} else if q.Skip > 0 && s.uow.store.dialect.Name == SQLite.Name {
		// SQLite only accepts OFFSET after LIMIT
		b.WriteString(" LIMIT -1")
	}
	if q.Skip > 0 {
		fmt.Fprintf(&b, " OFFSET %d", q.Skip)
	}

	rows, err := s.uow.conn().QueryContext(ctx, b.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", s.table.name, ConvertDBError(err))
	}
	defer rows.Close()

	out := make([]any, 0)
	for rows.Next() {
		entity := reflect.New(s.entityType)
		if err := rows.Scan(s.table.targets(entity.Elem())...); err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", s.table.name, err)
		}
		out = append(out, entity.Interface())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", s.table.name, ConvertDBError(err))
	}
	return out, nil
}

// Count implements storage.Set
func (s *set) Count(ctx context.Context, where *predicate.Node) (int, error) {
	counter := 1
	args := make([]any, 0)
	clause, err := s.where(where, &counter, &args)
	if err != nil {
		return 0, err
	}

	var n int
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s%s", s.table.name, clause)
	if err := s.uow.conn().QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", s.table.name, ConvertDBError(err))
	}
	return n, nil
}

func (s *set) stageAll(kind string, entities []any) error {
	for _, e := range entities {
		rv := reflect.ValueOf(e)
		if rv.Kind() != reflect.Pointer || rv.IsNil() || rv.Elem().Type() != s.entityType {
			return fmt.Errorf("%w: set of %s given %T", storage.ErrUnknownEntity, s.entityType, e)
		}
		if err := s.uow.stage(statement{table: s.table, kind: kind, entity: e}); err != nil {
			return err
		}
	}
	return nil
}

func (s *set) CreateOne(_ context.Context, entity any) error {
	return s.stageAll("insert", []any{entity})
}

func (s *set) CreateMany(_ context.Context, entities []any) error {
	return s.stageAll("insert", entities)
}

func (s *set) UpdateOne(_ context.Context, entity any) error {
	return s.stageAll("update", []any{entity})
}

func (s *set) UpdateMany(_ context.Context, entities []any) error {
	return s.stageAll("update", entities)
}

func (s *set) DeleteOne(_ context.Context, entity any) error {
	return s.stageAll("delete", []any{entity})
}

func (s *set) DeleteMany(_ context.Context, entities []any) error {
	return s.stageAll("delete", entities)
}
