package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// handleV1LiveMarkers returns the full live map state
// GET /api/v1/live/markers
func (s *Server) handleV1LiveMarkers(c *gin.Context) {
	view := s.deps.Live.View()
	c.JSON(http.StatusOK, gin.H{
		"data": view,
		"meta": gin.H{
			"count":        len(view.Markers),
			"generated_at": time.Now().UTC().Format(time.RFC3339),
		},
	})
}
