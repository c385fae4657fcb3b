package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// handleV1ListSites returns the site directory
// GET /api/v1/sites
func (s *Server) handleV1ListSites(c *gin.Context) {
	list := s.deps.Sites.All()
	c.JSON(http.StatusOK, gin.H{
		"data": list,
		"meta": gin.H{
			"count": len(list),
		},
	})
}

// handleV1ListParameters proxies the upstream parameter catalogue
// GET /api/v1/parameters
func (s *Server) handleV1ListParameters(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 30*time.Second)
	defer cancel()

	params, err := s.deps.Parameters.FetchParameters(ctx)
	if err != nil {
		s.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": params,
		"meta": gin.H{
			"count": len(params),
		},
	})
}
