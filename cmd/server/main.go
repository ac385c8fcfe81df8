package main

import (
	"log"
	"time"

	"github.com/prabhakart16/KafkaBatchUpload/internal/bus"
	"github.com/prabhakart16/KafkaBatchUpload/internal/config"
	"github.com/prabhakart16/KafkaBatchUpload/internal/models"
	"github.com/prabhakart16/KafkaBatchUpload/internal/routes"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

func main() {
	// Load .env
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

	publisher := bus.NewPublisher(cfg)
	defer publisher.Close()

	r := gin.Default()
	// CORS config
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{cfg.CORSOrigin},
		AllowMethods:     []string{"GET", "POST"},
		AllowHeaders:     []string{"Origin", "Content-Type"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	routes.RegisterRoutes(r, db, publisher)

	r.Run(cfg.HTTPAddr)
}
