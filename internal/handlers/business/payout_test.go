package business

import (
	"math"
	"testing"

	"pollsettle/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWinnerPayout(t *testing.T) {
	t.Run("worked scenario with commission", func(t *testing.T) {
		// stakes {optA: 1000, optB: 2000}, commission 150 (rate 0.05),
		// winner optA with one bettor staking 1000
		total := int64(3000)
		commission := CommissionAmount(total, 0.05)
		require.Equal(t, int64(150), commission)

		pool := total - commission
		assert.Equal(t, int64(2850), WinnerPayout(pool, 1000, 1000))
	})

	t.Run("zero commission pays the full pool", func(t *testing.T) {
		total := int64(3000)
		commission := CommissionAmount(total, 0)
		require.Zero(t, commission)
		assert.Equal(t, int64(3000), WinnerPayout(total, 1000, 1000))
	})

	t.Run("full commission pays nothing", func(t *testing.T) {
		total := int64(3000)
		commission := CommissionAmount(total, 1.0)
		require.Equal(t, total, commission)
		assert.Zero(t, WinnerPayout(total-commission, 1000, 1000))
	})

	t.Run("floor not rounding", func(t *testing.T) {
		// 1000 * 1 / 3 = 333.33 -> 333
		assert.Equal(t, int64(333), WinnerPayout(1000, 1, 3))
		// 999 * 2 / 3 = 666
		assert.Equal(t, int64(666), WinnerPayout(999, 2, 3))
	})

	t.Run("large pool does not overflow", func(t *testing.T) {
		pool := int64(math.MaxInt64 / 2)
		stake := int64(math.MaxInt64 / 3)
		winning := int64(math.MaxInt64 / 2)
		got := WinnerPayout(pool, stake, winning)
		assert.Greater(t, got, int64(0))
		assert.LessOrEqual(t, got, pool)
	})

	t.Run("degenerate inputs pay zero", func(t *testing.T) {
		assert.Zero(t, WinnerPayout(0, 100, 100))
		assert.Zero(t, WinnerPayout(100, 0, 100))
		assert.Zero(t, WinnerPayout(100, 100, 0))
	})
}

func TestCommissionAmount(t *testing.T) {
	assert.Equal(t, int64(150), CommissionAmount(3000, 0.05))
	assert.Equal(t, int64(0), CommissionAmount(3000, 0))
	assert.Equal(t, int64(3000), CommissionAmount(3000, 1.0))
	assert.Equal(t, int64(1), CommissionAmount(100, 0.015)) // floor of 1.5
	assert.Equal(t, int64(0), CommissionAmount(0, 0.5))
}

// settleAll drives the pure batch pipeline over all bets the way Phase 2
// does: compute credits per batch, advance the checkpoint, then close with
// the remainder rule.
func settleAll(t *testing.T, sp *SettlementProgress, bets []models.BetRecord, batchSize int) map[uint]int64 {
	t.Helper()
	paid := make(map[uint]int64)

	for offset := 0; offset < len(bets); offset += batchSize {
		end := offset + batchSize
		if end > len(bets) {
			end = len(bets)
		}
		credits := ComputeBatchCredits(sp, bets[offset:end])
		for _, credit := range credits {
			paid[credit.Bet.PlayerID] += credit.Amount
		}
		ApplyBatchToProgress(sp, credits)
	}

	// remainder-to-largest-winner
	if !sp.IsRefund {
		remaining := sp.PayoutPool - sp.TotalActualPayout
		if remaining > 0 {
			var top *models.BetRecord
			for i := range bets {
				if top == nil || bets[i].Amount > top.Amount {
					top = &bets[i]
				}
			}
			require.NotNil(t, top)
			paid[top.PlayerID] += remaining
			sp.TotalActualPayout = sp.PayoutPool
			sp.TotalPayout += remaining
			sp.RemainingAmount = 0
		}
	}
	return paid
}

func TestPayoutConservation(t *testing.T) {
	t.Run("equal stakes with indivisible pool", func(t *testing.T) {
		// three stakes of 111.11 in the smallest unit; the pool does not
		// divide evenly, the remainder rule must close the gap exactly
		bets := []models.BetRecord{
			{ID: 1, PlayerID: 1, OptionID: 1, Amount: 11111},
			{ID: 2, PlayerID: 2, OptionID: 1, Amount: 11111},
			{ID: 3, PlayerID: 3, OptionID: 1, Amount: 11111},
		}
		sp := &SettlementProgress{
			CurrentPhase:     PhaseProcess,
			PayoutPool:       33332, // 33333 total minus 1 commission
			TotalWinningBets: 33333,
			TotalWinners:     3,
		}

		paid := settleAll(t, sp, bets, 2)

		var sum int64
		for _, amount := range paid {
			sum += amount
		}
		assert.Equal(t, sp.PayoutPool, sum, "payouts must sum to the pool exactly")
		assert.Equal(t, sp.PayoutPool, sp.TotalActualPayout)
		assert.Zero(t, sp.RemainingAmount)
	})

	t.Run("uneven stakes across many batches", func(t *testing.T) {
		bets := make([]models.BetRecord, 0, 17)
		var totalStake int64
		for i := 0; i < 17; i++ {
			amount := int64(997*i + 13)
			totalStake += amount
			bets = append(bets, models.BetRecord{
				ID: uint(i + 1), PlayerID: uint(i + 1), OptionID: 1, Amount: amount,
			})
		}
		sp := &SettlementProgress{
			CurrentPhase:     PhaseProcess,
			PayoutPool:       totalStake - totalStake/20,
			TotalWinningBets: totalStake,
			TotalWinners:     len(bets),
		}

		paid := settleAll(t, sp, bets, 5)

		var sum int64
		for _, amount := range paid {
			sum += amount
		}
		assert.Equal(t, sp.PayoutPool, sum)
	})

	t.Run("refund returns every stake with no commission", func(t *testing.T) {
		bets := []models.BetRecord{
			{ID: 1, PlayerID: 1, OptionID: 1, Amount: 500},
			{ID: 2, PlayerID: 2, OptionID: 2, Amount: 1250},
			{ID: 3, PlayerID: 3, OptionID: 1, Amount: 1},
		}
		sp := &SettlementProgress{
			CurrentPhase: PhaseProcess,
			IsRefund:     true,
			PayoutPool:   1751,
			TotalWinners: 3,
		}

		paid := settleAll(t, sp, bets, 2)

		assert.Equal(t, int64(500), paid[1])
		assert.Equal(t, int64(1250), paid[2])
		assert.Equal(t, int64(1), paid[3])
		assert.Equal(t, int64(1751), sp.TotalPayout)
	})

	t.Run("tied options split proportionally to stake", func(t *testing.T) {
		// both options won; bettors across them split the pool by stake
		bets := []models.BetRecord{
			{ID: 1, PlayerID: 1, OptionID: 1, Amount: 1000},
			{ID: 2, PlayerID: 2, OptionID: 2, Amount: 3000},
		}
		sp := &SettlementProgress{
			CurrentPhase:     PhaseProcess,
			PayoutPool:       4000,
			TotalWinningBets: 4000,
			TotalWinners:     2,
		}

		paid := settleAll(t, sp, bets, 10)

		assert.Equal(t, int64(1000), paid[1])
		assert.Equal(t, int64(3000), paid[2])
	})
}

func TestFinalPayouts(t *testing.T) {
	t.Run("largest winner's amount includes the remainder", func(t *testing.T) {
		sp := &SettlementProgress{
			PayoutPool:       3325,
			TotalWinningBets: 1500,
			WinningOptionIDs: []uint{1},
		}
		bets := []models.BetRecord{
			{ID: 1, PlayerID: 1, OptionID: 1, Amount: 1000},
			{ID: 2, PlayerID: 2, OptionID: 1, Amount: 500},
			{ID: 3, PlayerID: 3, OptionID: 2, Amount: 2000},
		}

		amounts := FinalPayouts(sp, bets)

		// floor shares are 2216 and 1108; the 1-unit gap goes to bet 1
		assert.Equal(t, int64(2217), amounts[1])
		assert.Equal(t, int64(1108), amounts[2])
		assert.NotContains(t, amounts, uint(3))

		var sum int64
		for _, amount := range amounts {
			sum += amount
		}
		assert.Equal(t, sp.PayoutPool, sum)
	})

	t.Run("equal stakes give the remainder to the earliest bet", func(t *testing.T) {
		sp := &SettlementProgress{
			PayoutPool:       1000,
			TotalWinningBets: 999,
			WinningOptionIDs: []uint{1},
		}
		bets := []models.BetRecord{
			{ID: 1, PlayerID: 1, OptionID: 1, Amount: 333},
			{ID: 2, PlayerID: 2, OptionID: 1, Amount: 333},
			{ID: 3, PlayerID: 3, OptionID: 1, Amount: 333},
		}

		amounts := FinalPayouts(sp, bets)

		assert.Equal(t, int64(334), amounts[1])
		assert.Equal(t, int64(333), amounts[2])
		assert.Equal(t, int64(333), amounts[3])
	})

	t.Run("refund yields no winner amounts", func(t *testing.T) {
		sp := &SettlementProgress{IsRefund: true, PayoutPool: 500}
		bets := []models.BetRecord{{ID: 1, PlayerID: 1, OptionID: 1, Amount: 500}}
		assert.Empty(t, FinalPayouts(sp, bets))
	})
}

func TestBatchReplayIsDeterministic(t *testing.T) {
	// Re-running an uncommitted batch must produce the exact same credits:
	// the checkpoint cursor has not advanced, so a crash before commit can
	// never double-pay.
	bets := []models.BetRecord{
		{ID: 1, PlayerID: 1, OptionID: 1, Amount: 700},
		{ID: 2, PlayerID: 2, OptionID: 1, Amount: 300},
	}
	sp := &SettlementProgress{
		CurrentPhase:     PhaseProcess,
		PayoutPool:       950,
		TotalWinningBets: 1000,
		TotalWinners:     2,
	}

	first := ComputeBatchCredits(sp, bets)
	second := ComputeBatchCredits(sp, bets)
	require.Equal(t, first, second)

	ApplyBatchToProgress(sp, first)
	assert.Equal(t, 1, sp.CurrentBatch)
	assert.Equal(t, 2, sp.ProcessedWinners)
	assert.LessOrEqual(t, sp.TotalActualPayout, sp.PayoutPool)
	assert.LessOrEqual(t, sp.ProcessedWinners, sp.TotalWinners)
}
