package notify

import (
	"pollsettle/pkg/config"

	"github.com/sirupsen/logrus"
)

// NotificationQueue is the RabbitMQ queue settlement events are published to.
const NotificationQueue = "poll_notifications"

// Sink receives settlement outcome events. Delivery is fire-and-forget:
// errors are returned for logging only and must never influence settlement
// state.
type Sink interface {
	Win(ev WinEvent) error
	Loss(ev LossEvent) error
	Refund(ev RefundEvent) error
	SettlementComplete(ev CompleteEvent) error
}

// QueueSink publishes events to the RabbitMQ notification queue.
type QueueSink struct {
	pub   *config.Publisher
	queue string
}

// NewQueueSink creates a sink backed by the shared RabbitMQ connection.
func NewQueueSink() (*QueueSink, error) {
	pub, err := config.NewPublisher()
	if err != nil {
		return nil, err
	}
	return &QueueSink{pub: pub, queue: NotificationQueue}, nil
}

func (s *QueueSink) Win(ev WinEvent) error {
	return s.pub.Publish(s.queue, newEnvelope(EventTypeWin, ev))
}

func (s *QueueSink) Loss(ev LossEvent) error {
	return s.pub.Publish(s.queue, newEnvelope(EventTypeLoss, ev))
}

func (s *QueueSink) Refund(ev RefundEvent) error {
	return s.pub.Publish(s.queue, newEnvelope(EventTypeRefund, ev))
}

func (s *QueueSink) SettlementComplete(ev CompleteEvent) error {
	return s.pub.Publish(s.queue, newEnvelope(EventTypeComplete, ev))
}

// Close closes the underlying publisher channel.
func (s *QueueSink) Close() error {
	return s.pub.Close()
}

// LogSink writes events to the log. Used when RabbitMQ is not configured so
// settlement can still complete its notification phase.
type LogSink struct{}

func (LogSink) Win(ev WinEvent) error {
	logrus.WithFields(logrus.Fields{
		"player_id": ev.PlayerID, "poll_id": ev.PollID, "staked": ev.Staked, "won": ev.Won,
	}).Info("notification: win")
	return nil
}

func (LogSink) Loss(ev LossEvent) error {
	logrus.WithFields(logrus.Fields{
		"player_id": ev.PlayerID, "poll_id": ev.PollID, "staked": ev.Staked, "option": ev.OptionLabel,
	}).Info("notification: loss")
	return nil
}

func (LogSink) Refund(ev RefundEvent) error {
	logrus.WithFields(logrus.Fields{
		"player_id": ev.PlayerID, "poll_id": ev.PollID, "amount": ev.Amount, "reason": ev.Reason,
	}).Info("notification: refund")
	return nil
}

func (LogSink) SettlementComplete(ev CompleteEvent) error {
	logrus.WithFields(logrus.Fields{
		"player_id": ev.PlayerID, "poll_id": ev.PollID, "total_winners": ev.TotalWinners, "total_payout": ev.TotalPayout,
	}).Info("notification: settlement complete")
	return nil
}
