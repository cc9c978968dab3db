package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// ListEvents - GET /api/events
// Программа фестиваля; с ?category= добавляется цена для категории
func (h *Handlers) ListEvents(c *gin.Context) {
	events, err := h.services.Events.List(c.Request.Context(), c.Query("category"))
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, events)
}
