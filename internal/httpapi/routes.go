package httpapi

import "github.com/gin-gonic/gin"

// Register mounts the recording and call-log routes on an authenticated group.
func (h Handlers) Register(v1 *gin.RouterGroup) {
	rec := v1.Group("/call-recording/:id")
	{
		rec.POST("/chunk", h.UploadChunk)
		rec.POST("/finalize", h.Finalize)
		rec.GET("/play", h.Play)
		rec.HEAD("/play", h.Play)
		rec.GET("/download", h.Download)
	}

	logs := v1.Group("/call-logs")
	{
		logs.GET("/history", h.CallHistory)
		logs.GET("/missed", h.Missed)
		logs.GET("/summary", h.Summary)
		logs.GET("/room/:roomId", h.RoomHistory)
	}
}
