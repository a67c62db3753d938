package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEstimateCost_Standard(t *testing.T) {
	est, err := EstimateCost(10*1024*1024*1024, 2000, StorageClassStandard)
	require.NoError(t, err)

	assert.InDelta(t, 0.23, est.StorageUSD, 1e-9)
	assert.InDelta(t, 0.01, est.RequestsUSD, 1e-9)
	assert.InDelta(t, 0.24, est.TotalUSDMonthly, 1e-9)
}

func TestEstimateCost_ArchiveIsCheapest(t *testing.T) {
	standard, err := EstimateCost(1<<40, 0, StorageClassStandard)
	require.NoError(t, err)
	infrequent, err := EstimateCost(1<<40, 0, StorageClassInfrequent)
	require.NoError(t, err)
	archive, err := EstimateCost(1<<40, 0, StorageClassArchive)
	require.NoError(t, err)

	assert.Less(t, archive.TotalUSDMonthly, infrequent.TotalUSDMonthly)
	assert.Less(t, infrequent.TotalUSDMonthly, standard.TotalUSDMonthly)
}

func TestEstimateCost_ZeroTotals(t *testing.T) {
	est, err := EstimateCost(0, 0, StorageClassStandard)
	require.NoError(t, err)
	assert.Zero(t, est.TotalUSDMonthly)
}

func TestEstimateCost_UnknownClass(t *testing.T) {
	est, err := EstimateCost(1024, 1, "glacier-deep-freeze")
	require.Error(t, err)
	assert.Nil(t, est)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestEstimateCost_NegativeTotals(t *testing.T) {
	est, err := EstimateCost(-1, 0, StorageClassStandard)
	require.Error(t, err)
	assert.Nil(t, est)
	assert.ErrorIs(t, err, ErrValidation)
}
