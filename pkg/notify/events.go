package notify

import (
	"time"

	"github.com/google/uuid"
)

// Event types carried in the envelope published to the notification queue.
const (
	EventTypeWin      = "WIN"
	EventTypeLoss     = "LOSS"
	EventTypeRefund   = "REFUND"
	EventTypeComplete = "SETTLEMENT_COMPLETE"
)

// WinEvent tells a winner how much they staked and won.
type WinEvent struct {
	PlayerID  uint   `json:"player_id"`
	PollID    uint   `json:"poll_id"`
	PollTitle string `json:"poll_title"`
	Staked    int64  `json:"staked"`
	Won       int64  `json:"won"`
}

// LossEvent tells a loser which option they backed.
type LossEvent struct {
	PlayerID    uint   `json:"player_id"`
	PollID      uint   `json:"poll_id"`
	PollTitle   string `json:"poll_title"`
	Staked      int64  `json:"staked"`
	OptionLabel string `json:"option_label"`
}

// RefundEvent tells a bettor their stake came back and why.
type RefundEvent struct {
	PlayerID  uint   `json:"player_id"`
	PollID    uint   `json:"poll_id"`
	PollTitle string `json:"poll_title"`
	Amount    int64  `json:"amount"`
	Reason    string `json:"reason"`
}

// CompleteEvent is the aggregate settlement summary sent to one
// representative winner.
type CompleteEvent struct {
	PlayerID     uint   `json:"player_id"`
	PollID       uint   `json:"poll_id"`
	PollTitle    string `json:"poll_title"`
	TotalWinners int    `json:"total_winners"`
	TotalPayout  int64  `json:"total_payout"`
}

// Envelope wraps every event published to the queue.
type Envelope struct {
	ID     string      `json:"id"`
	Type   string      `json:"type"`
	SentAt time.Time   `json:"sent_at"`
	Event  interface{} `json:"event"`
}

func newEnvelope(eventType string, event interface{}) Envelope {
	return Envelope{
		ID:     uuid.NewString(),
		Type:   eventType,
		SentAt: time.Now(),
		Event:  event,
	}
}
