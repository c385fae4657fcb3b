package http

// registerV1Routes sets up the v1 API.
// Groups: /api/v1 (metadata), /api/v1/history, /api/v1/live
func (s *Server) registerV1Routes() {
	v1 := s.engine.Group("/api/v1")
	v1.Use(apiVersionMiddleware())

	if s.deps.Sites != nil {
		v1.GET("/sites", s.handleV1ListSites)
	}
	if s.deps.Parameters != nil {
		v1.GET("/parameters", s.handleV1ListParameters)
	}

	if s.deps.History != nil {
		hist := v1.Group("/history")
		{
			hist.GET("/sites", s.handleV1HistorySites)
			hist.GET("/sites/:site_id", s.handleV1HistorySeries)
		}
	}

	if s.deps.Live != nil {
		live := v1.Group("/live")
		{
			live.GET("/markers", s.handleV1LiveMarkers)
		}
	}
}
