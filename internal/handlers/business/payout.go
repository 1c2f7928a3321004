package business

import (
	"math/big"

	"pollsettle/internal/models"
)

// Reward log reasons written by the settlement pipeline and betting flow.
const (
	ReasonPollWin     = "POLL_WIN"
	ReasonPollRefund  = "POLL_REFUND"
	ReasonPollRemain  = "POLL_WIN_REMAINDER"
	ReasonBetStake    = "BET_STAKE"
	ReasonAdminAdjust = "ADMIN_ADJUST"
)

// mulDivFloor returns floor(a*b/c). The intermediate product can exceed
// int64 (payoutPool x stake), so it goes through big.Int.
func mulDivFloor(a, b, c int64) int64 {
	if c == 0 {
		return 0
	}
	res := new(big.Int).Mul(big.NewInt(a), big.NewInt(b))
	res.Quo(res, big.NewInt(c))
	return res.Int64()
}

// WinnerPayout computes one winner's share of the pool: integer floor of
// pool * stake / totalWinningStake. Floor, not rounding; the rounding gap is
// closed by the remainder step.
func WinnerPayout(pool, stake, totalWinningStake int64) int64 {
	if totalWinningStake <= 0 || pool <= 0 || stake <= 0 {
		return 0
	}
	return mulDivFloor(pool, stake, totalWinningStake)
}

// CommissionAmount computes the house cut from the configured rate. The
// float rate is snapped to basis points first so the amount itself is exact
// integer math: floor(total * bps / 10000).
func CommissionAmount(totalBetAmount int64, rate float64) int64 {
	if rate <= 0 || totalBetAmount <= 0 {
		return 0
	}
	if rate >= 1 {
		return totalBetAmount
	}
	bps := int64(rate*10000 + 0.5)
	return mulDivFloor(totalBetAmount, bps, 10000)
}

// BatchCredit is one ledger credit computed for a settlement batch.
type BatchCredit struct {
	Bet    models.BetRecord
	Amount int64
	Reason string
}

// ComputeBatchCredits derives the ledger credits for one batch of bet
// records. Pure: the same progress and batch always produce the same
// credits, which is what makes re-running an uncommitted batch safe.
func ComputeBatchCredits(sp *SettlementProgress, bets []models.BetRecord) []BatchCredit {
	credits := make([]BatchCredit, 0, len(bets))
	for _, bet := range bets {
		if sp.IsRefund {
			credits = append(credits, BatchCredit{Bet: bet, Amount: bet.Amount, Reason: ReasonPollRefund})
			continue
		}
		credits = append(credits, BatchCredit{
			Bet:    bet,
			Amount: WinnerPayout(sp.PayoutPool, bet.Amount, sp.TotalWinningBets),
			Reason: ReasonPollWin,
		})
	}
	return credits
}

// FinalPayouts returns the amount actually credited per winning bet, keyed
// by bet id: the floor share plus, for the largest-stake winner, the
// remainder that closed the rounding gap. Bets must be in id order so the
// remainder lands on the same bet the payout phase credited it to. Refund
// settlements yield an empty map.
func FinalPayouts(sp *SettlementProgress, bets []models.BetRecord) map[uint]int64 {
	amounts := make(map[uint]int64)
	if sp.IsRefund {
		return amounts
	}

	winning := make(map[uint]bool, len(sp.WinningOptionIDs))
	for _, id := range sp.WinningOptionIDs {
		winning[id] = true
	}

	var top *models.BetRecord
	var floorSum int64
	for i := range bets {
		bet := bets[i]
		if !winning[bet.OptionID] {
			continue
		}
		share := WinnerPayout(sp.PayoutPool, bet.Amount, sp.TotalWinningBets)
		amounts[bet.ID] = share
		floorSum += share
		if top == nil || bet.Amount > top.Amount {
			top = &bets[i]
		}
	}

	if top != nil {
		if remaining := sp.PayoutPool - floorSum; remaining > 0 {
			amounts[top.ID] += remaining
		}
	}
	return amounts
}

// ApplyBatchToProgress advances the checkpoint past one committed batch.
// Cursor and totals only ever move forward, and only together with the
// batch's credits inside the same transaction.
func ApplyBatchToProgress(sp *SettlementProgress, credits []BatchCredit) {
	var sum int64
	for _, c := range credits {
		sum += c.Amount
	}
	sp.CurrentBatch++
	sp.ProcessedWinners += len(credits)
	sp.TotalPayout += sum
	if !sp.IsRefund {
		sp.TotalActualPayout += sum
		sp.RemainingAmount = sp.PayoutPool - sp.TotalActualPayout
	}
}
