package business

import (
	"pollsettle/internal/models"
)

// Outcome is the result of resolving a closed poll. IsRefund means the poll
// produced no valid winning stake and every bettor gets their stake back.
type Outcome struct {
	IsRefund         bool
	RefundReason     string
	WinningOptionIDs []uint
	TotalStake       int64
	WinningStake     int64
	WinnerBetCount   int
}

// ResolveOutcome determines the winning option set for a closed poll. Pure
// function over the per-option tallies: the winners are all options at the
// maximum participation count (raw bet count, not stake-weighted), so ties
// produce multiple winners splitting the pool. Absence of data is a valid
// refund outcome, never an error.
func ResolveOutcome(options []models.PollOption) Outcome {
	var out Outcome
	maxCount := 0
	for _, opt := range options {
		out.TotalStake += opt.TotalStake
		if opt.BetCount > maxCount {
			maxCount = opt.BetCount
		}
	}

	if len(options) == 0 || out.TotalStake == 0 || maxCount == 0 {
		out.IsRefund = true
		out.RefundReason = "no valid stake on this poll"
		return out
	}

	for _, opt := range options {
		if opt.BetCount == maxCount {
			out.WinningOptionIDs = append(out.WinningOptionIDs, opt.ID)
			out.WinningStake += opt.TotalStake
			out.WinnerBetCount += opt.BetCount
		}
	}

	if out.WinningStake == 0 {
		// winners exist by count but carry no stake, nothing to split
		out.IsRefund = true
		out.RefundReason = "no stake on the winning side"
		out.WinningOptionIDs = nil
		out.WinnerBetCount = 0
	}

	return out
}
