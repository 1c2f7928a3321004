package main

import (
	"encoding/json"
	"log"

	"pollsettle/pkg/config"
	"pollsettle/pkg/notify"

	"github.com/joho/godotenv"
	logrus "github.com/sirupsen/logrus"
)

// envelope mirrors the published notification shape with the event left raw
// so each type can be decoded on its own.
type envelope struct {
	ID     string          `json:"id"`
	Type   string          `json:"type"`
	SentAt string          `json:"sent_at"`
	Event  json.RawMessage `json:"event"`
}

func main() {
	_ = godotenv.Load()

	// Initialize logger
	logrus.SetFormatter(&logrus.JSONFormatter{})
	logrus.SetLevel(logrus.InfoLevel)

	// Initialize RabbitMQ
	config.InitRabbitMQ()
	defer config.RabbitMQ.Close()

	msgConsumer, err := config.NewConsumer(notify.NotificationQueue)
	if err != nil {
		logrus.Fatal("Failed to create consumer: ", err)
	}
	defer msgConsumer.Close()

	logrus.Info("Notification worker started, waiting for settlement events...")

	err = msgConsumer.Consume(func(msg []byte) error {
		var env envelope
		if err := json.Unmarshal(msg, &env); err != nil {
			logrus.Errorf("Failed to unmarshal notification: %v", err)
			return err
		}

		// Delivery to players (push, mail, in-app) happens downstream;
		// this worker normalizes and records the dispatch.
		switch env.Type {
		case notify.EventTypeWin:
			var ev notify.WinEvent
			if err := json.Unmarshal(env.Event, &ev); err != nil {
				return err
			}
			logrus.WithFields(logrus.Fields{
				"event_id":  env.ID,
				"player_id": ev.PlayerID,
				"poll_id":   ev.PollID,
				"staked":    ev.Staked,
				"won":       ev.Won,
			}).Info("Dispatching win notification")

		case notify.EventTypeLoss:
			var ev notify.LossEvent
			if err := json.Unmarshal(env.Event, &ev); err != nil {
				return err
			}
			logrus.WithFields(logrus.Fields{
				"event_id":  env.ID,
				"player_id": ev.PlayerID,
				"poll_id":   ev.PollID,
				"staked":    ev.Staked,
				"option":    ev.OptionLabel,
			}).Info("Dispatching loss notification")

		case notify.EventTypeRefund:
			var ev notify.RefundEvent
			if err := json.Unmarshal(env.Event, &ev); err != nil {
				return err
			}
			logrus.WithFields(logrus.Fields{
				"event_id":  env.ID,
				"player_id": ev.PlayerID,
				"poll_id":   ev.PollID,
				"amount":    ev.Amount,
				"reason":    ev.Reason,
			}).Info("Dispatching refund notification")

		case notify.EventTypeComplete:
			var ev notify.CompleteEvent
			if err := json.Unmarshal(env.Event, &ev); err != nil {
				return err
			}
			logrus.WithFields(logrus.Fields{
				"event_id":      env.ID,
				"player_id":     ev.PlayerID,
				"poll_id":       ev.PollID,
				"total_winners": ev.TotalWinners,
				"total_payout":  ev.TotalPayout,
			}).Info("Dispatching settlement complete notification")

		default:
			logrus.Warnf("Unknown notification type %q (event %s), dropping", env.Type, env.ID)
		}

		return nil
	})

	if err != nil {
		log.Fatal("Failed to start consumer: ", err)
	}
}
