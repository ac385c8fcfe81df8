package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/prabhakart16/KafkaBatchUpload/internal/config"
	"github.com/prabhakart16/KafkaBatchUpload/internal/consumer"
	"github.com/prabhakart16/KafkaBatchUpload/internal/models"
	"github.com/prabhakart16/KafkaBatchUpload/internal/repository"
	"github.com/prabhakart16/KafkaBatchUpload/internal/services/tracking"

	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on system env")
	}

	cfg := config.Load()
	db := config.InitDB(cfg)

	db.AutoMigrate(
		&models.UploadBatch{},
		&models.BatchChunk{},
		&models.UploadRecord{},
		&models.ProcessedMessage{},
		&models.FailedMessage{},
	)

	batchRepo := repository.NewBatchRepository(db)
	recordRepo := repository.NewRecordRepository(db)
	trackingService := tracking.NewService(batchRepo)

	c := consumer.New(cfg, recordRepo, trackingService)
	defer c.Close()

	// Shutdown is cooperative: the loop observes cancellation between polls
	// and lets an in-flight transaction finish.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c.Run(ctx)

	log.Println("Worker stopped")
}
