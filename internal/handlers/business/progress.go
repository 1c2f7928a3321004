package business

import (
	"encoding/json"
	"fmt"
	"time"

	"pollsettle/internal/models"
)

// Settlement phases. Exactly one phase executes per scheduler invocation;
// the current phase is persisted on the poll so the pipeline resumes across
// invocations.
const (
	PhasePrepare   = "PREPARE"
	PhaseProcess   = "PROCESS"
	PhaseFinalize  = "FINALIZE"
	PhaseNotify    = "NOTIFY"
	PhaseCompleted = "COMPLETED"
)

// SettlementProgress is the durable checkpoint embedded in the poll row as
// jsonb. Updated once per phase or batch, never deleted while the poll
// exists. Invariants: ProcessedWinners <= TotalWinners, and
// TotalActualPayout <= PayoutPool until the remainder step closes the gap
// to exactly PayoutPool.
type SettlementProgress struct {
	CurrentPhase        string    `json:"currentPhase"`
	TotalBatches        int       `json:"totalBatches"`
	CurrentBatch        int       `json:"currentBatch"`
	TotalWinners        int       `json:"totalWinners"`
	ProcessedWinners    int       `json:"processedWinners"`
	WinningOptionIDs    []uint    `json:"winningOptionIds"`
	TotalPayout         int64     `json:"totalPayout"`
	IsRefund            bool      `json:"isRefund"`
	RefundReason        string    `json:"refundReason,omitempty"`
	StartTime           time.Time `json:"startTime"`
	LastProcessedTime   time.Time `json:"lastProcessedTime"`
	TotalBetAmount      int64     `json:"totalBetAmount"`
	TotalCommission     int64     `json:"totalCommission"`
	HouseCommissionRate float64   `json:"houseCommissionRate"`
	PayoutPool          int64     `json:"payoutPool"`
	TotalWinningBets    int64     `json:"totalWinningBets"`
	TotalActualPayout   int64     `json:"totalActualPayout"`
	RemainingAmount     int64     `json:"remainingAmount"`
}

// LoadProgress parses the poll's checkpoint. Returns nil when the poll has
// no progress blob yet (freshly claimed, Prepare not run).
func LoadProgress(poll *models.Poll) (*SettlementProgress, error) {
	if len(poll.SettlementProgress) == 0 || string(poll.SettlementProgress) == "null" {
		return nil, nil
	}
	var sp SettlementProgress
	if err := json.Unmarshal(poll.SettlementProgress, &sp); err != nil {
		return nil, fmt.Errorf("parse settlement progress for poll %d: %w", poll.ID, err)
	}
	return &sp, nil
}

// Marshal serializes the checkpoint for the jsonb column.
func (sp *SettlementProgress) Marshal() (json.RawMessage, error) {
	raw, err := json.Marshal(sp)
	if err != nil {
		return nil, fmt.Errorf("marshal settlement progress: %w", err)
	}
	return raw, nil
}
