package business

import (
	"errors"
	"math"

	"pollsettle/internal/models"
	dbconfig "pollsettle/pkg/config"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// LedgerOp is the closed set of balance operations.
type LedgerOp string

const (
	OpAdd      LedgerOp = "ADD"
	OpSubtract LedgerOp = "SUBTRACT"
	OpSet      LedgerOp = "SET"
)

// Ledger validation failures. Always returned, never silently dropped, so
// the caller can decide whether to abort its enclosing transaction.
var (
	ErrInvalidAmount       = errors.New("amount out of range")
	ErrUnknownOp           = errors.New("unknown ledger operation")
	ErrAssetNotFound       = errors.New("asset not found")
	ErrAssetInactive       = errors.New("asset is not active")
	ErrPlayerAssetBlocked  = errors.New("player asset is not active")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrOverflow            = errors.New("balance overflow")
)

// TxInput describes one balance mutation. PollID/BetID link the resulting
// rewards log row to its origin and are 0 when not poll-related.
type TxInput struct {
	PlayerID uint
	AssetID  uint
	Amount   int64
	Op       LedgerOp
	Reason   string
	PollID   uint
	BetID    uint
}

// TxOutcome reports the applied (or rejected) mutation. Success and Error
// let callers inspect failure without unwinding; the sentinel error is
// returned alongside for errors.Is checks.
type TxOutcome struct {
	Success       bool   `json:"success"`
	BalanceBefore int64  `json:"balance_before"`
	BalanceAfter  int64  `json:"balance_after"`
	Error         string `json:"error,omitempty"`
}

// applyOp computes the new balance for a validated operation. Pure; all
// range and sign invariants are enforced here.
func applyOp(balance, amount int64, op LedgerOp) (int64, error) {
	if amount < 0 {
		return balance, ErrInvalidAmount
	}
	switch op {
	case OpAdd:
		if balance > math.MaxInt64-amount {
			return balance, ErrOverflow
		}
		next := balance + amount
		if next < balance {
			// wrap-around, unreachable with the guard above but kept as a
			// hard stop on the money path
			return balance, ErrOverflow
		}
		return next, nil
	case OpSubtract:
		if amount > balance {
			return balance, ErrInsufficientBalance
		}
		return balance - amount, nil
	case OpSet:
		return amount, nil
	default:
		return balance, ErrUnknownOp
	}
}

// ApplyTransaction atomically mutates one player's balance of one asset and
// appends the audit row. Runs inside the caller-supplied transaction when tx
// is non-nil, else opens its own; this is how settlement composes a whole
// batch of credits into one all-or-nothing transaction.
func ApplyTransaction(tx *gorm.DB, in TxInput) (*TxOutcome, error) {
	if tx == nil {
		var out *TxOutcome
		err := dbconfig.DB.Transaction(func(inner *gorm.DB) error {
			var innerErr error
			out, innerErr = ApplyTransaction(inner, in)
			return innerErr
		})
		return out, err
	}

	fail := func(before int64, err error) (*TxOutcome, error) {
		return &TxOutcome{Success: false, BalanceBefore: before, BalanceAfter: before, Error: err.Error()}, err
	}

	if in.Amount < 0 {
		return fail(0, ErrInvalidAmount)
	}

	var asset models.AssetConfig
	if err := tx.First(&asset, in.AssetID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fail(0, ErrAssetNotFound)
		}
		return nil, err
	}
	if asset.Status != models.AssetStatusActive {
		return fail(0, ErrAssetInactive)
	}

	// Row lock serializes concurrent mutations of the same balance.
	var row models.PlayerAsset
	created := false
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("player_id = ? AND asset_id = ?", in.PlayerID, in.AssetID).
		First(&row).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		row = models.PlayerAsset{
			PlayerID: in.PlayerID,
			AssetID:  in.AssetID,
			Balance:  0,
			Status:   models.PlayerAssetStatusActive,
		}
		created = true
	}
	if row.Status != models.PlayerAssetStatusActive {
		return fail(row.Balance, ErrPlayerAssetBlocked)
	}

	before := row.Balance
	after, err := applyOp(before, in.Amount, in.Op)
	if err != nil {
		return fail(before, err)
	}

	row.Balance = after
	if created {
		if err := tx.Create(&row).Error; err != nil {
			return nil, err
		}
	} else {
		if err := tx.Model(&models.PlayerAsset{}).Where("id = ?", row.ID).
			Update("balance", after).Error; err != nil {
			return nil, err
		}
	}

	// SET is an administrative assignment and intentionally writes no
	// reward log entry; ADD and SUBTRACT always do.
	if in.Op == OpAdd || in.Op == OpSubtract {
		delta := in.Amount
		if in.Op == OpSubtract {
			delta = -in.Amount
		}
		entry := models.RewardsLog{
			PlayerID:      in.PlayerID,
			AssetID:       in.AssetID,
			Delta:         delta,
			BalanceBefore: before,
			BalanceAfter:  after,
			Reason:        in.Reason,
			PollID:        in.PollID,
			BetID:         in.BetID,
		}
		if err := tx.Create(&entry).Error; err != nil {
			return nil, err
		}
	}

	return &TxOutcome{Success: true, BalanceBefore: before, BalanceAfter: after}, nil
}
