package api

// routes sets up the routes for the API server.
func (s *Server) routes() {
	v1 := s.router.Group("/api/v1")

	v1.POST("/orgs", s.deployOrg)
	v1.GET("/orgs", s.listOrgs)
	v1.GET("/transfers/:recipient", s.getTransfers)

	org := v1.Group("/orgs/:org")
	org.GET("/treasury", s.getTreasury)
	org.GET("/employees", s.getEmployees)
	org.GET("/events", s.getEvents)
	org.GET("/accrued/:employee", s.getAccrued)
	org.GET("/streams/:employee", s.getStream)

	org.POST("/deposit", s.deposit)
	org.POST("/streams", s.createStream)
	org.POST("/streams/:employee/pause", s.pauseStream)
	org.POST("/streams/:employee/resume", s.resumeStream)
	org.POST("/streams/:employee/cancel", s.cancelStream)
	org.POST("/withdraw", s.withdraw)
	org.POST("/bonus", s.sendBonus)
	org.POST("/tax/withdraw", s.withdrawTax)
	org.POST("/owner", s.transferOwnership)
}
