package business

import (
	"testing"
	"time"

	"pollsettle/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadProgress(t *testing.T) {
	t.Run("missing blob loads as nil", func(t *testing.T) {
		sp, err := LoadProgress(&models.Poll{})
		require.NoError(t, err)
		assert.Nil(t, sp)
	})

	t.Run("json null loads as nil", func(t *testing.T) {
		sp, err := LoadProgress(&models.Poll{SettlementProgress: []byte("null")})
		require.NoError(t, err)
		assert.Nil(t, sp)
	})

	t.Run("garbage blob is an error", func(t *testing.T) {
		_, err := LoadProgress(&models.Poll{ID: 7, SettlementProgress: []byte("{not json")})
		assert.Error(t, err)
	})

	t.Run("checkpoint survives a save/load cycle", func(t *testing.T) {
		in := &SettlementProgress{
			CurrentPhase:        PhaseProcess,
			TotalBatches:        4,
			CurrentBatch:        2,
			TotalWinners:        350,
			ProcessedWinners:    200,
			WinningOptionIDs:    []uint{3, 9},
			IsRefund:            false,
			StartTime:           time.Now().Truncate(time.Second),
			TotalBetAmount:      100000,
			TotalCommission:     5000,
			HouseCommissionRate: 0.05,
			PayoutPool:          95000,
			TotalWinningBets:    60000,
			TotalActualPayout:   54000,
			RemainingAmount:     41000,
		}

		raw, err := in.Marshal()
		require.NoError(t, err)

		out, err := LoadProgress(&models.Poll{SettlementProgress: raw})
		require.NoError(t, err)
		require.NotNil(t, out)
		assert.Equal(t, in.CurrentBatch, out.CurrentBatch)
		assert.Equal(t, in.WinningOptionIDs, out.WinningOptionIDs)
		assert.Equal(t, in.TotalActualPayout, out.TotalActualPayout)
		assert.LessOrEqual(t, out.ProcessedWinners, out.TotalWinners)
		assert.LessOrEqual(t, out.TotalActualPayout, out.PayoutPool)
	})
}
