package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/aqwatch/aqms-pipeline/internal/history"
)

type siteURI struct {
	SiteID int `uri:"site_id" binding:"required,min=1"`
}

// handleV1HistorySites returns the site selection list
// GET /api/v1/history/sites
func (s *Server) handleV1HistorySites(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	opts, err := s.deps.History.Options(ctx)
	if err != nil {
		s.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": opts,
		"meta": gin.H{
			"count": len(opts),
		},
	})
}

// handleV1HistorySeries returns the time-ordered values of one site
// GET /api/v1/history/sites/:site_id
func (s *Server) handleV1HistorySeries(c *gin.Context) {
	var uri siteURI
	if err := c.ShouldBindUri(&uri); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid site_id"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 15*time.Second)
	defer cancel()

	series, err := s.deps.History.Series(ctx, uri.SiteID)
	if errors.Is(err, history.ErrUnknownSite) {
		c.JSON(http.StatusNotFound, gin.H{"error": "site not found"})
		return
	}
	if err != nil {
		s.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": series,
		"meta": gin.H{
			"count":        len(series.Points),
			"generated_at": time.Now().UTC().Format(time.RFC3339),
		},
	})
}
