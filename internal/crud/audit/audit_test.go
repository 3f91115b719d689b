package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conduit-lang/crudkit/internal/crud/hooks"
	"github.com/conduit-lang/crudkit/internal/crud/resolver"
	"github.com/conduit-lang/crudkit/internal/crud/tracking"
)

type Invoice struct {
	ID     int
	Amount int
	Paid   bool
}

type payInvoice struct {
	ID int
}

var at = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func setupTestRedis(t *testing.T) (*RedisSink, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	sink := NewRedisSinkWithClient(client, RedisConfig{Key: "test:audit", MaxEntries: 2})
	t.Cleanup(func() { sink.Close() })
	return sink, mr
}

func TestNewEntry(t *testing.T) {
	tests := []struct {
		name     string
		old, new any
		action   Action
		entityID any
		changed  []string
	}{
		{
			name:     "create",
			old:      nil,
			new:      &Invoice{ID: 1, Amount: 10},
			action:   ActionCreate,
			entityID: 1,
			changed:  []string{"Amount", "ID", "Paid"},
		},
		{
			name:     "update",
			old:      &Invoice{ID: 1, Amount: 10},
			new:      &Invoice{ID: 1, Amount: 10, Paid: true},
			action:   ActionUpdate,
			entityID: 1,
			changed:  []string{"Paid"},
		},
		{
			name:     "delete",
			old:      &Invoice{ID: 2},
			new:      (*Invoice)(nil),
			action:   ActionDelete,
			entityID: 2,
			changed:  []string{"Amount", "ID", "Paid"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := NewEntry(&payInvoice{}, tt.old, tt.new, at)
			require.NoError(t, err)
			assert.Equal(t, tt.action, e.Action)
			assert.Equal(t, tt.entityID, e.EntityID)
			assert.Equal(t, "audit.Invoice", e.Entity)
			assert.Equal(t, "audit.payInvoice", e.Request)
			assert.Equal(t, at, e.At)
			assert.NotEmpty(t, e.ID)

			fields := make([]string, 0, len(e.Changes))
			for _, c := range e.Changes {
				fields = append(fields, c.Field)
			}
			assert.Equal(t, tt.changed, fields)
		})
	}

	_, err := NewEntry(&payInvoice{}, nil, nil, at)
	assert.ErrorIs(t, err, ErrNoEntity)
}

func TestRecorderAsAuditHook(t *testing.T) {
	sink := NewMemorySink()
	rec := NewRecorder(sink, nil)
	rec.SkipUnchanged = true
	list := []*hooks.Factory{rec.Hook()}
	exec := hooks.NewExecutor(nil)
	ctx := context.Background()

	old := &Invoice{ID: 5, Amount: 3}
	require.NoError(t, exec.RunAudit(ctx, list, nil, &payInvoice{ID: 5}, old, &Invoice{ID: 5, Amount: 4}))
	require.NoError(t, exec.RunAudit(ctx, list, nil, &payInvoice{ID: 5}, old, &Invoice{ID: 5, Amount: 3}))

	entries := sink.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, []tracking.FieldChange{{Field: "Amount", OldValue: 3, NewValue: 4}}, entries[0].Changes)
	assert.Equal(t, "audit.Recorder", rec.Hook().Name())
}

func TestResolvedHook(t *testing.T) {
	sink := NewMemorySink()
	rec := NewRecorder(sink, nil)
	list := []*hooks.Factory{ResolvedHook()}
	ctx := context.Background()

	exec := hooks.NewExecutor(resolver.New().Provide(rec))
	require.NoError(t, exec.RunAudit(ctx, list, nil, &payInvoice{ID: 5}, nil, &Invoice{ID: 5, Amount: 4}))
	require.Len(t, sink.Entries(), 1)
	assert.Equal(t, ActionCreate, sink.Entries()[0].Action)

	err := hooks.NewExecutor(resolver.New()).RunAudit(ctx, list, nil, &payInvoice{ID: 5}, nil, &Invoice{ID: 5})
	assert.ErrorIs(t, err, resolver.ErrNotRegistered)
	assert.Len(t, sink.Entries(), 1)
}

type failingSink struct{}

func (failingSink) Write(context.Context, Entry) error { return errors.New("disk full") }

func TestRecorderSinkFailure(t *testing.T) {
	rec := NewRecorder(failingSink{}, nil)
	err := rec.HandleAudit(context.Background(), &payInvoice{}, nil, &Invoice{ID: 1})
	assert.EqualError(t, err, "failed to write audit entry: disk full")
}

func TestRedisSink(t *testing.T) {
	sink, mr := setupTestRedis(t)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		e, err := NewEntry(&payInvoice{ID: i}, nil, &Invoice{ID: i, Amount: i * 10}, at)
		require.NoError(t, err)
		require.NoError(t, sink.Write(ctx, e))
	}

	n, err := sink.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n, "list is trimmed to MaxEntries")

	entries, err := sink.Recent(ctx, 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	// JSON numbers decode as float64
	assert.Equal(t, float64(3), entries[0].EntityID)
	assert.Equal(t, float64(2), entries[1].EntityID)
	assert.Equal(t, ActionCreate, entries[0].Action)

	latest, err := sink.Recent(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, latest, 1)

	assert.True(t, mr.Exists("test:audit"))
}

func TestRedisSinkDecodeError(t *testing.T) {
	sink, mr := setupTestRedis(t)
	_, err := mr.Lpush("test:audit", "not json")
	require.NoError(t, err)

	_, err = sink.Recent(context.Background(), 0)
	assert.ErrorContains(t, err, "failed to decode audit entry")
}

func TestNewRedisSink(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	cfg := DefaultRedisConfig()
	cfg.Addr = mr.Addr()
	sink, err := NewRedisSink(cfg)
	require.NoError(t, err)
	defer sink.Close()
	assert.Equal(t, "crudkit:audit", sink.config.Key)
}

func TestNewRedisSinkConnectionError(t *testing.T) {
	cfg := DefaultRedisConfig()
	cfg.Addr = "localhost:99999"
	_, err := NewRedisSink(cfg)
	assert.Error(t, err)
}
