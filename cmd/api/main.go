package main

import (
	"log"
	"os"

	"pollsettle/internal/handlers"
	"pollsettle/internal/handlers/business"
	"pollsettle/internal/routes"
	"pollsettle/pkg/config"
	"pollsettle/pkg/notify"

	"github.com/joho/godotenv"
)

func main() {
	// Load .env if present, real env wins
	_ = godotenv.Load()

	// Initialize database
	config.InitDB()

	// Versioned SQL migrations on top of AutoMigrate, opt-in for deploys
	if os.Getenv("RUN_MIGRATIONS") == "true" {
		config.ExecuteMigrations()
	}

	// Notification sink: RabbitMQ when configured, log fallback otherwise
	var sink notify.Sink = notify.LogSink{}
	if os.Getenv("RABBITMQ_HOST") != "" {
		config.InitRabbitMQ()
		defer func() {
			if config.RabbitMQ != nil {
				config.RabbitMQ.Close()
			}
		}()

		queueSink, err := notify.NewQueueSink()
		if err != nil {
			log.Fatal("Failed to create notification sink:", err)
		}
		defer queueSink.Close()
		sink = queueSink
		log.Println("RabbitMQ notification sink initialized")
	} else {
		log.Println("RabbitMQ not configured, notifications go to the log")
	}

	// Settlement engine behind POST /settlement/step
	handlers.InitSettler(business.NewSettler(config.DB, sink))

	// Set up router
	r := routes.SetupRouter()

	// Start server
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	if err := r.Run(":" + port); err != nil {
		log.Fatal("Failed to start server:", err)
	}
}
