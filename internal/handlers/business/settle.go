package business

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"pollsettle/internal/models"
	"pollsettle/pkg/notify"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// StepResult is the outcome of one "process next settlement step"
// invocation. Silent=true means no eligible work was found, which is a
// no-op tick, not an error.
type StepResult struct {
	Success         bool   `json:"success"`
	Phase           string `json:"phase,omitempty"`
	NextPhase       string `json:"nextPhase,omitempty"`
	PollID          uint   `json:"pollId,omitempty"`
	Message         string `json:"message,omitempty"`
	Error           string `json:"error,omitempty"`
	Completed       bool   `json:"completed"`
	ExecutionTimeMs int64  `json:"executionTimeMs"`
	Silent          bool   `json:"silent"`
}

// errCheckpointConflict means another invocation advanced the settlement
// checkpoint between this invocation's read and its write. The losing
// writer's transaction rolls back whole, so none of its ledger credits
// survive; the work itself was already done by the winner.
var errCheckpointConflict = errors.New("settlement checkpoint advanced concurrently")

// Settler drives the multi-phase settlement state machine. It holds no
// in-memory settlement state: every invocation reads the poll's persisted
// checkpoint, executes exactly one phase for at most one poll, commits, and
// returns.
type Settler struct {
	db             *gorm.DB
	sink           notify.Sink
	batchSize      int
	stepBudget     time.Duration
	gracePeriod    time.Duration
	livenessWindow time.Duration
	runID          string
}

// NewSettler builds a settler with env-tunable limits. A grace period of
// zero is valid (settle as soon as the poll closes); zero batch size or
// step budget is not.
func NewSettler(db *gorm.DB, sink notify.Sink) *Settler {
	host, _ := os.Hostname()
	s := &Settler{
		db:             db,
		sink:           sink,
		batchSize:      envInt("SETTLE_BATCH_SIZE", 100),
		stepBudget:     time.Duration(envInt("SETTLE_STEP_BUDGET_MS", 8000)) * time.Millisecond,
		gracePeriod:    time.Duration(envInt("SETTLE_GRACE_PERIOD_SEC", 60)) * time.Second,
		livenessWindow: time.Duration(envInt("SETTLE_LIVENESS_WINDOW_SEC", 300)) * time.Second,
		runID:          fmt.Sprintf("%s-%s", host, uuid.NewString()[:8]),
	}
	if s.batchSize < 1 {
		s.batchSize = 1
	}
	if s.stepBudget <= 0 {
		s.stepBudget = 8 * time.Second
	}
	return s
}

func envInt(name string, def int) int {
	if v := os.Getenv(name); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed >= 0 {
			return parsed
		}
	}
	return def
}

// ProcessNextStep selects at most one poll needing settlement work and
// executes exactly one phase for it. Idempotent: callers can re-invoke
// after any failure and the pipeline resumes from the last committed
// checkpoint.
func (s *Settler) ProcessNextStep() *StepResult {
	start := time.Now()
	deadline := start.Add(s.stepBudget)

	done := func(res *StepResult) *StepResult {
		res.ExecutionTimeMs = time.Since(start).Milliseconds()
		return res
	}

	poll, sp, err := s.selectPoll()
	if err != nil {
		logrus.Errorf("settlement: poll selection failed: %v", err)
		return done(&StepResult{Success: false, Error: err.Error()})
	}
	if poll == nil {
		return done(&StepResult{Success: true, Silent: true, Message: "no eligible settlement work"})
	}

	if time.Now().After(deadline) {
		// selection alone ate the budget; nothing was mutated beyond the
		// claim, which the liveness window recovers
		return done(&StepResult{
			Success: false,
			PollID:  poll.ID,
			Phase:   sp.CurrentPhase,
			Error:   "step budget exceeded before phase execution",
		})
	}

	phase := sp.CurrentPhase
	log := logrus.WithFields(logrus.Fields{"poll_id": poll.ID, "phase": phase, "run_id": s.runID})

	var res *StepResult
	switch phase {
	case PhasePrepare:
		res, err = s.phasePrepare(poll, sp)
	case PhaseProcess:
		res, err = s.phaseProcess(poll, sp)
	case PhaseFinalize:
		res, err = s.phaseFinalize(poll, sp)
	case PhaseNotify:
		res, err = s.phaseNotify(poll, sp)
	case PhaseCompleted:
		res = &StepResult{Success: true, PollID: poll.ID, Phase: phase, Completed: true, Message: "settlement already completed"}
	default:
		err = fmt.Errorf("unknown settlement phase %q", phase)
	}

	if err != nil {
		if errors.Is(err, errCheckpointConflict) {
			// same taxonomy as a lost claim: a race, not a failure
			log.Warn("settlement step lost the checkpoint race, yielding")
			return done(&StepResult{Success: true, PollID: poll.ID, Phase: phase,
				Message: "checkpoint advanced by a concurrent invocation"})
		}
		log.Errorf("settlement phase failed: %v", err)
		s.rollbackToOpen(poll, phase, err)
		return done(&StepResult{Success: false, PollID: poll.ID, Phase: phase, Error: err.Error()})
	}

	if time.Now().After(deadline) {
		// the phase committed; surface the overrun so the scheduler can
		// account for it, state is exactly as of the last commit
		res.Success = false
		res.Error = "step budget exceeded; phase state persisted"
	}

	log.WithFields(logrus.Fields{"next_phase": res.NextPhase, "completed": res.Completed}).
		Info("settlement step finished")
	return done(res)
}

// selectPoll returns the poll to work on and its checkpoint, or nil when
// there is no work. Preference order: a live in-flight settlement, then a
// freshly claimed eligible poll. Stale SETTLING polls (no checkpoint touch
// within the liveness window) are reset to OPEN and re-enter the claim pool.
func (s *Settler) selectPoll() (*models.Poll, *SettlementProgress, error) {
	now := time.Now()
	staleCutoff := now.Add(-s.livenessWindow)

	// In-flight: either still SETTLING and recently touched, or already
	// finalized but with the notification phase pending.
	var poll models.Poll
	err := s.db.
		Where("(betting_status = ? AND is_settled = false AND updated_at >= ?) OR settlement_progress->>'currentPhase' = ?",
			models.BettingStatusSettling, staleCutoff, PhaseNotify).
		Order("updated_at asc").
		First(&poll).Error
	if err == nil {
		sp, perr := LoadProgress(&poll)
		if perr != nil {
			return nil, nil, perr
		}
		if sp == nil {
			// claimed but Prepare never ran
			sp = &SettlementProgress{CurrentPhase: PhasePrepare}
		}
		return &poll, sp, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil, err
	}

	// Reclaim abandoned settlements.
	reset := s.db.Model(&models.Poll{}).
		Where("betting_status = ? AND is_settled = false AND updated_at < ?", models.BettingStatusSettling, staleCutoff).
		Update("betting_status", models.BettingStatusOpen)
	if reset.Error != nil {
		return nil, nil, reset.Error
	}
	if reset.RowsAffected > 0 {
		logrus.Warnf("settlement: reset %d stalled settlement(s) to OPEN", reset.RowsAffected)
	}

	// Claim one newly eligible poll. The conditional update is the
	// ownership handshake: only the invocation whose update affects a row
	// owns that poll for Prepare.
	eligible := s.db.Model(&models.Poll{}).
		Select("id").
		Where("betting_status = ? AND is_settled = false AND closes_at <= ?",
			models.BettingStatusOpen, now.Add(-s.gracePeriod)).
		Order("closes_at asc").
		Limit(1)
	claim := s.db.Model(&models.Poll{}).
		Where("id = (?) AND betting_status = ?", eligible, models.BettingStatusOpen).
		Updates(map[string]interface{}{
			"betting_status": models.BettingStatusSettling,
			"settled_by":     s.runID,
		})
	if claim.Error != nil {
		return nil, nil, claim.Error
	}
	if claim.RowsAffected == 0 {
		return nil, nil, nil
	}

	if err := s.db.Where("betting_status = ? AND settled_by = ? AND is_settled = false",
		models.BettingStatusSettling, s.runID).
		Order("updated_at desc").
		First(&poll).Error; err != nil {
		return nil, nil, fmt.Errorf("reload claimed poll: %w", err)
	}

	sp, perr := LoadProgress(&poll)
	if perr != nil {
		return nil, nil, perr
	}
	if sp == nil || sp.CurrentPhase == PhaseCompleted {
		sp = &SettlementProgress{CurrentPhase: PhasePrepare}
	}
	return &poll, sp, nil
}

// phasePrepare resolves the winning set and writes the initial checkpoint.
// No balance is touched here, so a failed Prepare can always retry from
// scratch after rollback to OPEN.
func (s *Settler) phasePrepare(poll *models.Poll, _ *SettlementProgress) (*StepResult, error) {
	now := time.Now()

	// Three independent already-settled guards; the poll may have raced
	// with another settlement path.
	if poll.IsSettled || poll.SettledAt != nil || poll.BettingStatus == models.BettingStatusSettled || answerCount(poll) > 0 {
		if err := s.db.Model(&models.Poll{}).Where("id = ?", poll.ID).
			Update("betting_status", models.BettingStatusSettled).Error; err != nil {
			return nil, err
		}
		return &StepResult{Success: true, PollID: poll.ID, Phase: PhasePrepare,
			Completed: true, Message: "poll already settled"}, nil
	}
	if poll.ClosesAt.After(now) {
		return nil, fmt.Errorf("poll %d close time has not passed", poll.ID)
	}

	options, err := s.loadOptionTallies(poll.ID)
	if err != nil {
		return nil, err
	}
	outcome := ResolveOutcome(options)

	var totalBets int64
	var totalBetAmount int64
	row := s.db.Model(&models.BetRecord{}).
		Select("COUNT(*) AS cnt, COALESCE(SUM(amount), 0) AS total").
		Where("poll_id = ?", poll.ID).
		Row()
	if err := row.Scan(&totalBets, &totalBetAmount); err != nil {
		return nil, fmt.Errorf("aggregate bets for poll %d: %w", poll.ID, err)
	}

	sp := &SettlementProgress{
		CurrentPhase:        PhaseProcess,
		StartTime:           now,
		LastProcessedTime:   now,
		HouseCommissionRate: poll.HouseCommissionRate,
		TotalBetAmount:      totalBetAmount,
		IsRefund:            outcome.IsRefund,
		RefundReason:        outcome.RefundReason,
		WinningOptionIDs:    outcome.WinningOptionIDs,
	}

	if outcome.IsRefund {
		// commission is waived on refunds: the whole pool goes back
		sp.PayoutPool = totalBetAmount
		sp.TotalWinners = int(totalBets)
	} else {
		sp.TotalCommission = CommissionAmount(totalBetAmount, poll.HouseCommissionRate)
		sp.PayoutPool = totalBetAmount - sp.TotalCommission
		sp.TotalWinningBets = outcome.WinningStake
		sp.TotalWinners = outcome.WinnerBetCount
	}
	sp.RemainingAmount = sp.PayoutPool

	if s.batchSize > 0 {
		sp.TotalBatches = (sp.TotalWinners + s.batchSize - 1) / s.batchSize
	}

	// A previous run of this settlement may have already paid out some
	// batches before being rolled back to OPEN. Prepare is idempotent over
	// the computed totals, so resuming just means keeping the cursor.
	if prev, perr := LoadProgress(poll); perr == nil && prev != nil && prev.CurrentPhase != PhasePrepare {
		sp.CurrentBatch = prev.CurrentBatch
		sp.ProcessedWinners = prev.ProcessedWinners
		sp.TotalPayout = prev.TotalPayout
		sp.TotalActualPayout = prev.TotalActualPayout
		sp.RemainingAmount = sp.PayoutPool - sp.TotalActualPayout
		sp.StartTime = prev.StartTime
		if prev.CurrentPhase == PhaseFinalize || prev.CurrentPhase == PhaseNotify {
			sp.CurrentPhase = prev.CurrentPhase
		}
	}

	if err := s.saveProgress(s.db, poll.ID, sp); err != nil {
		return nil, err
	}

	msg := fmt.Sprintf("prepared: %d target(s) in %d batch(es), pool %d", sp.TotalWinners, sp.TotalBatches, sp.PayoutPool)
	if sp.IsRefund {
		msg = fmt.Sprintf("prepared refund: %d bettor(s), %d returned", sp.TotalWinners, sp.PayoutPool)
	}
	return &StepResult{Success: true, PollID: poll.ID, Phase: PhasePrepare, NextPhase: sp.CurrentPhase, Message: msg}, nil
}

// phaseProcess pays out one batch. The batch's ledger credits, the cursor
// advance and the checkpoint save commit in one transaction, so a crash can
// never leave a half-applied batch or replay a committed one.
func (s *Settler) phaseProcess(poll *models.Poll, sp *SettlementProgress) (*StepResult, error) {
	bets, err := s.fetchBatch(poll.ID, sp)
	if err != nil {
		return nil, err
	}

	if len(bets) == 0 {
		return s.closeProcessing(poll, sp)
	}

	credits := ComputeBatchCredits(sp, bets)
	next := *sp
	ApplyBatchToProgress(&next, credits)
	next.LastProcessedTime = time.Now()

	err = s.db.Transaction(func(tx *gorm.DB) error {
		for _, credit := range credits {
			if credit.Amount == 0 {
				continue
			}
			if _, err := ApplyTransaction(tx, TxInput{
				PlayerID: credit.Bet.PlayerID,
				AssetID:  poll.AssetID,
				Amount:   credit.Amount,
				Op:       OpAdd,
				Reason:   credit.Reason,
				PollID:   poll.ID,
				BetID:    credit.Bet.ID,
			}); err != nil {
				return fmt.Errorf("credit player %d: %w", credit.Bet.PlayerID, err)
			}
		}
		return s.saveProgressFenced(tx, poll.ID, sp, &next)
	})
	if err != nil {
		return nil, err
	}

	*sp = next
	return &StepResult{
		Success: true, PollID: poll.ID, Phase: PhaseProcess, NextPhase: PhaseProcess,
		Message: fmt.Sprintf("batch %d/%d processed (%d/%d targets)", sp.CurrentBatch, sp.TotalBatches, sp.ProcessedWinners, sp.TotalWinners),
	}, nil
}

// closeProcessing runs once all batches are drained: distributes the floor
// division remainder to the largest-stake winner, then hands over to
// Finalize.
func (s *Settler) closeProcessing(poll *models.Poll, sp *SettlementProgress) (*StepResult, error) {
	next := *sp
	msg := "all batches processed"

	if !sp.IsRefund {
		remaining := sp.PayoutPool - sp.TotalActualPayout
		if remaining > 0 && sp.TotalWinners > 0 {
			var top models.BetRecord
			err := s.db.Where("poll_id = ? AND option_id IN ?", poll.ID, sp.WinningOptionIDs).
				Order("amount desc, id asc").
				First(&top).Error
			if err != nil {
				return nil, fmt.Errorf("find largest winner for remainder: %w", err)
			}

			next.TotalActualPayout = sp.PayoutPool
			next.TotalPayout += remaining
			next.RemainingAmount = 0
			next.CurrentPhase = PhaseFinalize
			next.LastProcessedTime = time.Now()

			err = s.db.Transaction(func(tx *gorm.DB) error {
				if _, err := ApplyTransaction(tx, TxInput{
					PlayerID: top.PlayerID,
					AssetID:  poll.AssetID,
					Amount:   remaining,
					Op:       OpAdd,
					Reason:   ReasonPollRemain,
					PollID:   poll.ID,
					BetID:    top.ID,
				}); err != nil {
					return fmt.Errorf("credit remainder to player %d: %w", top.PlayerID, err)
				}
				return s.saveProgressFenced(tx, poll.ID, sp, &next)
			})
			if err != nil {
				return nil, err
			}

			*sp = next
			return &StepResult{
				Success: true, PollID: poll.ID, Phase: PhaseProcess, NextPhase: PhaseFinalize,
				Message: fmt.Sprintf("remainder %d credited to player %d", remaining, top.PlayerID),
			}, nil
		}
	}

	next.RemainingAmount = next.PayoutPool - next.TotalActualPayout
	if next.IsRefund {
		next.RemainingAmount = 0
	}
	next.CurrentPhase = PhaseFinalize
	next.LastProcessedTime = time.Now()
	if err := s.saveProgressFenced(s.db, poll.ID, sp, &next); err != nil {
		return nil, err
	}
	*sp = next
	return &StepResult{Success: true, PollID: poll.ID, Phase: PhaseProcess, NextPhase: PhaseFinalize, Message: msg}, nil
}

// phaseFinalize is the point of no return: one transaction flips the poll
// to settled and writes the settlement log. After this commits the
// settlement is authoritative regardless of notification outcomes.
func (s *Settler) phaseFinalize(poll *models.Poll, sp *SettlementProgress) (*StepResult, error) {
	now := time.Now()

	answer, err := json.Marshal(sp.WinningOptionIDs)
	if err != nil {
		return nil, err
	}
	if sp.WinningOptionIDs == nil {
		answer = json.RawMessage("[]")
	}

	distribution, err := s.buildDistribution(poll.ID, sp)
	if err != nil {
		return nil, err
	}

	houseEdge := 0.0
	if sp.TotalBetAmount > 0 {
		houseEdge = float64(sp.TotalCommission) / float64(sp.TotalBetAmount)
	}

	next := *sp
	next.CurrentPhase = PhaseNotify
	next.LastProcessedTime = now
	raw, err := next.Marshal()
	if err != nil {
		return nil, err
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		updates := map[string]interface{}{
			"status":              models.PollStatusEnded,
			"betting_status":      models.BettingStatusSettled,
			"is_settled":          true,
			"settled_at":          now,
			"settled_by":          s.runID,
			"answer_option_ids":   answer,
			"house_commission":    sp.TotalCommission,
			"settlement_progress": raw,
		}
		// One invocation settles; a concurrent Finalize sees zero rows and
		// yields instead of writing a duplicate settlement log.
		flip := tx.Model(&models.Poll{}).Where("id = ? AND is_settled = false", poll.ID).Updates(updates)
		if flip.Error != nil {
			return flip.Error
		}
		if flip.RowsAffected == 0 {
			return errCheckpointConflict
		}

		entry := models.SettlementLog{
			PollID:             poll.ID,
			WinningOptionIDs:   answer,
			IsRefund:           sp.IsRefund,
			TotalPool:          sp.TotalBetAmount,
			Commission:         sp.TotalCommission,
			TotalPayout:        sp.TotalPayout,
			TotalWinners:       sp.TotalWinners,
			HouseEdge:          houseEdge,
			PayoutDistribution: distribution,
			StartedAt:          sp.StartTime,
			SettledAt:          now,
			DurationMs:         now.Sub(sp.StartTime).Milliseconds(),
		}
		return tx.Create(&entry).Error
	})
	if err != nil {
		return nil, err
	}

	*sp = next
	return &StepResult{
		Success: true, PollID: poll.ID, Phase: PhaseFinalize, NextPhase: PhaseNotify,
		Message: fmt.Sprintf("settled: payout %d to %d target(s), commission %d", sp.TotalPayout, sp.TotalWinners, sp.TotalCommission),
	}, nil
}

// phaseNotify sends one outcome event per bettor plus one aggregate event.
// Best-effort only: per-recipient failures are logged and the phase always
// transitions to COMPLETED.
func (s *Settler) phaseNotify(poll *models.Poll, sp *SettlementProgress) (*StepResult, error) {
	var bets []models.BetRecord
	if err := s.db.Where("poll_id = ?", poll.ID).Order("id asc").Find(&bets).Error; err != nil {
		return nil, err
	}

	var options []models.PollOption
	if err := s.db.Where("poll_id = ?", poll.ID).Find(&options).Error; err != nil {
		return nil, err
	}
	labels := make(map[uint]string, len(options))
	for _, opt := range options {
		labels[opt.ID] = opt.Label
	}
	winning := make(map[uint]bool, len(sp.WinningOptionIDs))
	for _, id := range sp.WinningOptionIDs {
		winning[id] = true
	}

	// Credited amounts per winning bet, remainder included, so the win
	// notification reports what the ledger actually paid.
	payouts := FinalPayouts(sp, bets)
	var topWinner *models.BetRecord
	for i := range bets {
		if !sp.IsRefund && winning[bets[i].OptionID] {
			if topWinner == nil || bets[i].Amount > topWinner.Amount {
				topWinner = &bets[i]
			}
		}
	}

	var wg sync.WaitGroup
	for i := range bets {
		bet := bets[i]
		wg.Add(1)
		go func(bet models.BetRecord) {
			defer wg.Done()
			var err error
			switch {
			case sp.IsRefund:
				err = s.sink.Refund(notify.RefundEvent{
					PlayerID: bet.PlayerID, PollID: poll.ID, PollTitle: poll.Title,
					Amount: bet.Amount, Reason: sp.RefundReason,
				})
			case winning[bet.OptionID]:
				err = s.sink.Win(notify.WinEvent{
					PlayerID: bet.PlayerID, PollID: poll.ID, PollTitle: poll.Title,
					Staked: bet.Amount,
					Won:    payouts[bet.ID],
				})
			default:
				err = s.sink.Loss(notify.LossEvent{
					PlayerID: bet.PlayerID, PollID: poll.ID, PollTitle: poll.Title,
					Staked: bet.Amount, OptionLabel: labels[bet.OptionID],
				})
			}
			if err != nil {
				logrus.WithFields(logrus.Fields{"poll_id": poll.ID, "player_id": bet.PlayerID}).
					Warnf("notification dispatch failed: %v", err)
			}
		}(bet)
	}
	wg.Wait()

	if topWinner != nil {
		if err := s.sink.SettlementComplete(notify.CompleteEvent{
			PlayerID: topWinner.PlayerID, PollID: poll.ID, PollTitle: poll.Title,
			TotalWinners: sp.TotalWinners, TotalPayout: sp.TotalPayout,
		}); err != nil {
			logrus.Warnf("settlement complete notification failed for poll %d: %v", poll.ID, err)
		}
	}

	next := *sp
	next.CurrentPhase = PhaseCompleted
	next.LastProcessedTime = time.Now()
	if err := s.saveProgress(s.db, poll.ID, &next); err != nil {
		return nil, err
	}

	*sp = next
	return &StepResult{
		Success: true, PollID: poll.ID, Phase: PhaseNotify, Completed: true,
		Message: fmt.Sprintf("notified %d bettor(s)", len(bets)),
	}, nil
}

// rollbackToOpen returns the poll to the claim pool after a phase failure.
// The checkpoint blob is kept: Prepare resumes the cursor from it so
// already-committed batches are never re-applied. Finalize failures are
// flagged for manual review because money may already have moved.
func (s *Settler) rollbackToOpen(poll *models.Poll, phase string, cause error) {
	if poll.IsSettled || phase == PhaseNotify {
		// past the point of no return; never reopen a settled poll
		return
	}
	updates := map[string]interface{}{"betting_status": models.BettingStatusOpen}
	if phase == PhaseFinalize {
		updates["requires_review"] = true
	}
	if err := s.db.Model(&models.Poll{}).Where("id = ? AND is_settled = false", poll.ID).
		Updates(updates).Error; err != nil {
		logrus.Errorf("rollback of poll %d to OPEN failed: %v (original: %v)", poll.ID, err, cause)
	}
}

func (s *Settler) fetchBatch(pollID uint, sp *SettlementProgress) ([]models.BetRecord, error) {
	q := s.db.Where("poll_id = ?", pollID)
	if !sp.IsRefund {
		q = q.Where("option_id IN ?", sp.WinningOptionIDs)
	}
	var bets []models.BetRecord
	err := q.Order("id asc").
		Offset(sp.CurrentBatch * s.batchSize).
		Limit(s.batchSize).
		Find(&bets).Error
	return bets, err
}

func (s *Settler) loadOptionTallies(pollID uint) ([]models.PollOption, error) {
	var options []models.PollOption
	if err := s.db.Where("poll_id = ?", pollID).Find(&options).Error; err != nil {
		return nil, err
	}

	// Bet records are authoritative; recompute tallies instead of trusting
	// the denormalized option counters.
	type tally struct {
		OptionID uint
		Cnt      int
		Total    int64
	}
	var tallies []tally
	err := s.db.Model(&models.BetRecord{}).
		Select("option_id, COUNT(*) AS cnt, COALESCE(SUM(amount), 0) AS total").
		Where("poll_id = ?", pollID).
		Group("option_id").
		Scan(&tallies).Error
	if err != nil {
		return nil, err
	}
	byOption := make(map[uint]tally, len(tallies))
	for _, t := range tallies {
		byOption[t.OptionID] = t
	}
	for i := range options {
		t := byOption[options[i].ID]
		options[i].BetCount = t.Cnt
		options[i].TotalStake = t.Total
	}
	return options, nil
}

func (s *Settler) buildDistribution(pollID uint, sp *SettlementProgress) (json.RawMessage, error) {
	type tally struct {
		OptionID uint
		Cnt      int
		Total    int64
	}
	q := s.db.Model(&models.BetRecord{}).
		Select("option_id, COUNT(*) AS cnt, COALESCE(SUM(amount), 0) AS total").
		Where("poll_id = ?", pollID)
	if !sp.IsRefund {
		q = q.Where("option_id IN ?", sp.WinningOptionIDs)
	}
	var tallies []tally
	if err := q.Group("option_id").Order("option_id asc").Scan(&tallies).Error; err != nil {
		return nil, err
	}

	dist := make([]models.OptionDistribution, 0, len(tallies))
	for _, t := range tallies {
		payout := t.Total // refunds return the stake
		if !sp.IsRefund {
			payout = WinnerPayout(sp.PayoutPool, t.Total, sp.TotalWinningBets)
		}
		dist = append(dist, models.OptionDistribution{
			OptionID: t.OptionID,
			Bets:     t.Cnt,
			Stake:    t.Total,
			Payout:   payout,
		})
	}
	return json.Marshal(dist)
}

func (s *Settler) saveProgress(db *gorm.DB, pollID uint, sp *SettlementProgress) error {
	raw, err := sp.Marshal()
	if err != nil {
		return err
	}
	return db.Model(&models.Poll{}).Where("id = ?", pollID).
		Update("settlement_progress", raw).Error
}

// saveProgressFenced persists the checkpoint only while the stored phase and
// cursor still match what this invocation loaded. Overlapping invocations
// (a second worker, a tick outlasting a slow phase, a reclaimed-but-alive
// run) can otherwise both commit the same batch's credits. The loser sees
// zero rows affected and must abort its enclosing transaction.
func (s *Settler) saveProgressFenced(db *gorm.DB, pollID uint, loaded, next *SettlementProgress) error {
	raw, err := next.Marshal()
	if err != nil {
		return err
	}
	res := db.Model(&models.Poll{}).
		Where("id = ? AND settlement_progress->>'currentPhase' = ? AND settlement_progress->>'currentBatch' = ?",
			pollID, loaded.CurrentPhase, strconv.Itoa(loaded.CurrentBatch)).
		Update("settlement_progress", raw)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return errCheckpointConflict
	}
	return nil
}

func answerCount(poll *models.Poll) int {
	if len(poll.AnswerOptionIDs) == 0 {
		return 0
	}
	var ids []uint
	if err := json.Unmarshal(poll.AnswerOptionIDs, &ids); err != nil {
		return 0
	}
	return len(ids)
}
