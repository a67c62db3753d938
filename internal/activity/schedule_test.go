package activity

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// ---------- Mock DB ----------

type mockDB struct {
	mock.Mock
}

func (m *mockDB) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	args := m.Called(ctx, sql, arguments)
	return args.Get(0).(pgconn.CommandTag), args.Error(1)
}

func (m *mockDB) Query(ctx context.Context, sql string, arguments ...any) (pgx.Rows, error) {
	args := m.Called(ctx, sql, arguments)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(pgx.Rows), args.Error(1)
}

func (m *mockDB) QueryRow(ctx context.Context, sql string, arguments ...any) pgx.Row {
	args := m.Called(ctx, sql, arguments)
	return args.Get(0).(pgx.Row)
}

// ---------- Mock Rows ----------

type mockRows struct {
	callIndex int
	scanFuncs []func(dest ...any) error
	err       error
}

func newMockRows(scanFuncs ...func(dest ...any) error) *mockRows {
	return &mockRows{scanFuncs: scanFuncs}
}

func (m *mockRows) Next() bool {
	return m.callIndex < len(m.scanFuncs)
}

func (m *mockRows) Scan(dest ...any) error {
	if m.callIndex < len(m.scanFuncs) {
		fn := m.scanFuncs[m.callIndex]
		m.callIndex++
		return fn(dest...)
	}
	return nil
}

func (m *mockRows) Err() error                                   { return m.err }
func (m *mockRows) Close()                                       {}
func (m *mockRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (m *mockRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (m *mockRows) RawValues() [][]byte                          { return nil }
func (m *mockRows) Values() ([]any, error)                       { return nil, nil }
func (m *mockRows) Conn() *pgx.Conn                              { return nil }

// scheduledConfigScan builds a scan func for the ListDueConfigs row shape.
func scheduledConfigScan(id, userID, mode, schedule, timezone string, anchor time.Time) func(dest ...any) error {
	return func(dest ...any) error {
		*dest[0].(*string) = id
		*dest[1].(*string) = userID
		*dest[2].(*string) = mode
		*dest[3].(*string) = schedule
		*dest[4].(*string) = timezone
		*dest[5].(*time.Time) = anchor
		return nil
	}
}

// ---------- ListDueConfigs ----------

func TestScheduleListDueConfigs_DueAndNotDue(t *testing.T) {
	ctx := context.Background()
	db := new(mockDB)
	sched := NewSchedule(db, nil, zerolog.Nop())

	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	rows := newMockRows(
		// Daily at 02:00, last ran yesterday noon: fired at 02:00 today.
		scheduledConfigScan("cfg-due", "user-1", "agent", "0 2 * * *", "UTC", now.Add(-24*time.Hour)),
		// Daily at 02:00, last ran at 03:00 today: next fire is tomorrow.
		scheduledConfigScan("cfg-not-due", "user-1", "agent", "0 2 * * *", "UTC", now.Add(-9*time.Hour)),
	)
	db.On("Query", ctx, mock.Anything, mock.Anything).Return(rows, nil)

	due, err := sched.ListDueConfigs(ctx, now)
	require.NoError(t, err)

	require.Len(t, due, 1)
	assert.Equal(t, "cfg-due", due[0].ID)
	assert.Equal(t, "user-1", due[0].UserID)
	db.AssertExpectations(t)
}

func TestScheduleListDueConfigs_BadScheduleSkipped(t *testing.T) {
	ctx := context.Background()
	db := new(mockDB)
	sched := NewSchedule(db, nil, zerolog.Nop())

	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	rows := newMockRows(
		scheduledConfigScan("cfg-bad", "user-1", "agent", "not a cron", "UTC", now.Add(-48*time.Hour)),
		scheduledConfigScan("cfg-ok", "user-1", "server", "*/5 * * * *", "UTC", now.Add(-time.Hour)),
	)
	db.On("Query", ctx, mock.Anything, mock.Anything).Return(rows, nil)

	due, err := sched.ListDueConfigs(ctx, now)
	require.NoError(t, err)

	require.Len(t, due, 1)
	assert.Equal(t, "cfg-ok", due[0].ID)
}

func TestScheduleListDueConfigs_TimezoneAnchor(t *testing.T) {
	ctx := context.Background()
	db := new(mockDB)
	sched := NewSchedule(db, nil, zerolog.Nop())

	// 13:00 UTC is 14:00 in Oslo (winter). A 13:30 Oslo schedule anchored an
	// hour ago has fired; the same clock read as UTC would not have.
	now := time.Date(2026, 1, 15, 13, 0, 0, 0, time.UTC)
	rows := newMockRows(
		scheduledConfigScan("cfg-oslo", "user-1", "agent", "30 13 * * *", "Europe/Oslo", now.Add(-2*time.Hour)),
	)
	db.On("Query", ctx, mock.Anything, mock.Anything).Return(rows, nil)

	due, err := sched.ListDueConfigs(ctx, now)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, "cfg-oslo", due[0].ID)
}

func TestScheduleListDueConfigs_QueryError(t *testing.T) {
	ctx := context.Background()
	db := new(mockDB)
	sched := NewSchedule(db, nil, zerolog.Nop())

	db.On("Query", ctx, mock.Anything, mock.Anything).Return(nil, errors.New("connection refused"))

	_, err := sched.ListDueConfigs(ctx, time.Now())
	assert.Error(t, err)
}

// ---------- nextFire ----------

func TestNextFire_BadTimezone(t *testing.T) {
	_, err := nextFire("0 2 * * *", "Mars/Olympus", time.Now())
	assert.Error(t, err)
}

func TestNextFire_EmptyTimezoneIsUTC(t *testing.T) {
	anchor := time.Date(2026, 3, 10, 1, 0, 0, 0, time.UTC)
	fire, err := nextFire("0 2 * * *", "", anchor)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 10, 2, 0, 0, 0, time.UTC), fire.UTC())
}
