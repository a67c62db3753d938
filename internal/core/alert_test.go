package core

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/edvin/backhaul/internal/model"
)

func TestAlertService_Create(t *testing.T) {
	db := &mockDB{}
	svc := NewAlertService(db)
	ctx := context.Background()

	db.On("Exec", ctx, sqlContaining("INSERT INTO alerts"), mock.MatchedBy(func(args []any) bool {
		return args[1] == "user-1" && args[3] == model.AlertTypeBackupFailed && args[4] == "disk full"
	})).Return(pgconn.CommandTag{}, nil)

	err := svc.Create(ctx, "user-1", strPtr("cfg-1"), model.AlertTypeBackupFailed, "disk full")
	require.NoError(t, err)
	db.AssertExpectations(t)
}

func TestAlertService_ListByUser_UnacknowledgedOnly(t *testing.T) {
	db := &mockDB{}
	svc := NewAlertService(db)
	ctx := context.Background()

	now := time.Now()
	rows := newMockRows(func(dest ...any) error {
		*(dest[0].(*string)) = "alert-1"
		*(dest[1].(*string)) = "user-1"
		*(dest[2].(**string)) = strPtr("cfg-1")
		*(dest[3].(*string)) = model.AlertTypeVerificationFailed
		*(dest[4].(*string)) = "backup missing from storage"
		*(dest[5].(*bool)) = false
		*(dest[6].(*time.Time)) = now
		return nil
	})
	db.On("Query", ctx, sqlContaining("NOT acknowledged"), mock.Anything).Return(rows, nil)

	alerts, err := svc.ListByUser(ctx, "user-1", true)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, model.AlertTypeVerificationFailed, alerts[0].Type)
	assert.False(t, alerts[0].Acknowledged)
	db.AssertExpectations(t)
}

func TestAlertService_Acknowledge_NotFound(t *testing.T) {
	db := &mockDB{}
	svc := NewAlertService(db)
	ctx := context.Background()

	db.On("Exec", ctx, sqlContaining("SET acknowledged"), mock.Anything).Return(execTag(0), nil)

	err := svc.Acknowledge(ctx, "user-1", "alert-gone")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
	db.AssertExpectations(t)
}
