package handlers

import "github.com/gin-gonic/gin"

// RegisterRoutes mounts the card API under api.
func (h *Handlers) RegisterRoutes(api *gin.RouterGroup) {
	cards := api.Group("/cards")
	{
		cards.POST("", h.IssueCard)
		cards.GET("", h.ListCards)
		cards.GET("/search", h.SearchCards)
		cards.GET("/expiring", h.ExpiringCards)
		cards.GET("/stats", h.CardStats)
		cards.POST("/verify", h.VerifyToken)
		cards.GET("/:id", h.GetCard)
		cards.POST("/:id/revoke", h.RevokeCard)
		cards.POST("/:id/renew", h.RenewCard)
	}

	api.GET("/events", h.ListEvents)
	api.POST("/sales", h.Sell)

	redemptions := api.Group("/redemptions")
	{
		redemptions.GET("", h.ListRedemptions)
		redemptions.GET("/annullable", h.ListAnnullable)
		redemptions.POST("/:id/annul", h.AnnulRedemption)
	}

	api.GET("/reports/daily", h.DailyReport)
}
