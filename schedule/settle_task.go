package main

import (
	"os"

	"pollsettle/internal/handlers/business"
	dbconfig "pollsettle/pkg/config"
	"pollsettle/pkg/notify"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	logger "github.com/sirupsen/logrus"
)

// runSettleStep executes one settlement phase and logs the result. Silent
// results (no eligible work) are skipped to keep the log readable.
func runSettleStep(settler *business.Settler) {
	res := settler.ProcessNextStep()
	if res.Silent {
		return
	}

	fields := logger.Fields{
		"poll_id":           res.PollID,
		"phase":             res.Phase,
		"next_phase":        res.NextPhase,
		"completed":         res.Completed,
		"execution_time_ms": res.ExecutionTimeMs,
	}
	if !res.Success {
		logger.WithFields(fields).Errorf("> settlement step failed: %s", res.Error)
		return
	}
	logger.WithFields(fields).Infof("> settlement step: %s", res.Message)
}

func main() {
	_ = godotenv.Load()

	// Log to file, fall back to stdout
	os.MkdirAll("logs", 0755)
	file, err := os.OpenFile("logs/settle_task.log", os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err == nil {
		logger.SetOutput(file)
	} else {
		logger.Warn("cannot open log file, logging to stdout")
	}

	logger.SetFormatter(&logger.TextFormatter{
		FullTimestamp: true,
	})
	logger.SetLevel(logger.InfoLevel)
	logger.Info("> settlement worker starting...")

	dbconfig.InitDB()
	logger.Info("> database connection initialized")

	var sink notify.Sink = notify.LogSink{}
	if os.Getenv("RABBITMQ_HOST") != "" {
		dbconfig.InitRabbitMQ()
		defer dbconfig.RabbitMQ.Close()

		queueSink, err := notify.NewQueueSink()
		if err != nil {
			logger.Fatalf("> failed to create notification sink: %v", err)
		}
		defer queueSink.Close()
		sink = queueSink
		logger.Info("> RabbitMQ notification sink initialized")
	} else {
		logger.Info("> RabbitMQ not configured, notifications go to the log")
	}

	settler := business.NewSettler(dbconfig.DB, sink)

	cronSpec := os.Getenv("SETTLE_CRON_SPEC")
	if cronSpec == "" {
		cronSpec = "*/10 * * * * *" // every 10 seconds
	}

	c := cron.New(cron.WithSeconds())
	_, err = c.AddFunc(cronSpec, func() {
		runSettleStep(settler)
	})
	if err != nil {
		logger.Fatalf("> failed to register settlement task: %v", err)
	}

	// Run once on startup so a backlog drains without waiting a tick.
	runSettleStep(settler)

	logger.Infof("> settlement task scheduled (%s)", cronSpec)
	c.Start()

	select {}
}
