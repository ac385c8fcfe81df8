package routes

import (
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	handler "github.com/prabhakart16/KafkaBatchUpload/internal/handlers"
	"github.com/prabhakart16/KafkaBatchUpload/internal/repository"
	"github.com/prabhakart16/KafkaBatchUpload/internal/services/tracking"
)

func RegisterRoutes(r *gin.Engine, db *gorm.DB, publisher handler.Publisher) {
	batchRepo := repository.NewBatchRepository(db)

	trackingService := tracking.NewService(batchRepo)

	uploadHandler := handler.NewUploadHandler(trackingService, publisher)

	api := r.Group("/api")

	// Health check
	api.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	upload := api.Group("/bulk-upload")
	upload.POST("", uploadHandler.UploadChunk)
	upload.GET("/status/:batchId", uploadHandler.GetBatchStatus)
}
