package records_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/tenantguard/internal/records"
	"github.com/dmitrymomot/tenantguard/pkg/command"
	"github.com/dmitrymomot/tenantguard/pkg/event"
	"github.com/dmitrymomot/tenantguard/pkg/tenant"
)

func enter(t *testing.T, id tenant.ID, actor string) context.Context {
	t.Helper()
	ctx, release, err := tenant.Enter(context.Background(), id)
	require.NoError(t, err)
	t.Cleanup(release)
	return tenant.WithActor(ctx, actor)
}

func newService(t *testing.T, tx *fakeTx) (*command.Bus, *event.MemoryStore) {
	t.Helper()
	store := event.NewMemoryStore()
	em, err := event.NewEmitter(store, publisher{log: tx.log})
	require.NoError(t, err)

	svc := records.NewService(newBinder(tx), em,
		records.WithClock(func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }))
	bus := command.NewBus()
	require.NoError(t, svc.Register(bus))
	return bus, store
}

func TestCreateRecord(t *testing.T) {
	t.Parallel()

	id := tenant.New()
	tx := &fakeTx{log: &journal{}}
	bus, store := newService(t, tx)

	cmd := records.CreateRecord{Tenant: id, RecordID: uuid.New(), Title: "hello", Body: "world"}
	require.NoError(t, bus.Dispatch(enter(t, id, "alice"), cmd))

	assert.Equal(t, []string{
		"bind",
		"INSERT INTO records",
		"commit",
		"reset",
		"publish " + records.EventRecordCreated,
	}, tx.log.all())

	args := tx.log.argsOf("INSERT INTO records")
	require.Len(t, args, 5)
	assert.Equal(t, cmd.RecordID, args[0])
	assert.Equal(t, "alice", args[3])
	for _, a := range args {
		assert.NotEqual(t, id.String(), a, "tenant must come from the session binding")
	}

	envs, err := store.Load(context.Background(), 0, 10)
	require.NoError(t, err)
	require.Len(t, envs, 1)
	assert.Equal(t, id, envs[0].Metadata.TenantID)
	assert.Equal(t, "alice", envs[0].Metadata.Actor)
	assert.JSONEq(t, `{"record_id":"`+cmd.RecordID.String()+`","title":"hello"}`, string(envs[0].Payload))
}

func TestCreateRecord_Rejected(t *testing.T) {
	t.Parallel()

	a, b := tenant.New(), tenant.New()

	tests := []struct {
		name string
		ctx  func(t *testing.T) context.Context
		cmd  records.CreateRecord
		want error
	}{
		{
			name: "foreign tenant",
			ctx:  func(t *testing.T) context.Context { return enter(t, a, "") },
			cmd:  records.CreateRecord{Tenant: b, RecordID: uuid.New(), Title: "x"},
			want: tenant.ErrContextMismatch,
		},
		{
			name: "no tenant",
			ctx:  func(*testing.T) context.Context { return context.Background() },
			cmd:  records.CreateRecord{Tenant: a, RecordID: uuid.New(), Title: "x"},
			want: tenant.ErrMissingContext,
		},
		{
			name: "empty title",
			ctx:  func(t *testing.T) context.Context { return enter(t, a, "") },
			cmd:  records.CreateRecord{Tenant: a, RecordID: uuid.New()},
			want: records.ErrTitleRequired,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			tx := &fakeTx{log: &journal{}}
			bus, store := newService(t, tx)

			err := bus.Dispatch(tt.ctx(t), tt.cmd)
			assert.ErrorIs(t, err, tt.want)
			assert.Empty(t, tx.log.all(), "rejected commands must not touch storage")

			envs, _ := store.Load(context.Background(), 0, 10)
			assert.Empty(t, envs)
		})
	}
}

func TestCreateRecord_InsertFailureRollsBack(t *testing.T) {
	t.Parallel()

	id := tenant.New()
	tx := &fakeTx{log: &journal{}, insertErr: &pgconn.PgError{Code: "23505"}}
	bus, store := newService(t, tx)

	err := bus.Dispatch(enter(t, id, ""), records.CreateRecord{Tenant: id, RecordID: uuid.New(), Title: "dup"})
	assert.ErrorIs(t, err, records.ErrDuplicate)

	entries := tx.log.all()
	assert.Contains(t, entries, "rollback")
	assert.NotContains(t, entries, "commit")
	for _, e := range entries {
		assert.NotContains(t, e, "publish")
	}
	envs, _ := store.Load(context.Background(), 0, 10)
	assert.Empty(t, envs)
}

func TestRepository_ClassifiesPolicyErrors(t *testing.T) {
	t.Parallel()

	id := tenant.New()
	for code, want := range map[string]error{
		"42501": tenant.ErrContextMismatch,
		"23502": tenant.ErrMissingContext,
	} {
		tx := &fakeTx{log: &journal{}, insertErr: &pgconn.PgError{Code: code}}
		bus, _ := newService(t, tx)

		err := bus.Dispatch(enter(t, id, ""), records.CreateRecord{Tenant: id, RecordID: uuid.New(), Title: "x"})
		assert.True(t, errors.Is(err, want), "code %s: %v", code, err)
	}
}

func TestCreateRecord_Validate(t *testing.T) {
	t.Parallel()

	long := make([]rune, records.MaxTitleLength+1)
	for i := range long {
		long[i] = 'é'
	}

	assert.ErrorIs(t, records.CreateRecord{Title: "x"}.Validate(), records.ErrRecordIDRequired)
	assert.ErrorIs(t, records.CreateRecord{RecordID: uuid.New()}.Validate(), records.ErrTitleRequired)
	assert.ErrorIs(t, records.CreateRecord{RecordID: uuid.New(), Title: string(long)}.Validate(), records.ErrTitleTooLong)
	assert.NoError(t, records.CreateRecord{RecordID: uuid.New(), Title: string(long[:records.MaxTitleLength])}.Validate())
}
