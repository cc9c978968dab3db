package handlers

import (
	"net/http"
	"strconv"

	"tessera/internal/models"

	"github.com/gin-gonic/gin"
)

// Sales and redemptions handlers

// Sell - POST /api/sales
// Продать билет по карте и погасить её на событие
func (h *Handlers) Sell(c *gin.Context) {
	var req models.SellRequest
	if !h.bindJSON(c, &req) {
		return
	}

	response, err := h.services.Sales.Sell(c.Request.Context(), &req)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, response)
}

// ListRedemptions - GET /api/redemptions
func (h *Handlers) ListRedemptions(c *gin.Context) {
	limit, ok := h.queryInt(c, "limit")
	if !ok {
		return
	}
	offset, ok := h.queryInt(c, "offset")
	if !ok {
		return
	}
	includeAnnulled, _ := strconv.ParseBool(c.Query("include_annulled"))

	items, err := h.services.Sales.ListRedemptions(c.Request.Context(), models.RedemptionFilter{
		CardID:          c.Query("card_id"),
		EventID:         c.Query("event_id"),
		Operator:        c.Query("operator"),
		IncludeAnnulled: includeAnnulled,
		Limit:           limit,
		Offset:          offset,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, items)
}

// ListAnnullable - GET /api/redemptions/annullable
// Погашения, которые ещё можно аннулировать
func (h *Handlers) ListAnnullable(c *gin.Context) {
	limit, ok := h.queryInt(c, "limit")
	if !ok {
		return
	}

	items, err := h.services.Annulments.ListAnnullable(c.Request.Context(), limit)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, items)
}

// AnnulRedemption - POST /api/redemptions/:id/annul
// Аннулировать погашение и связанную продажу
func (h *Handlers) AnnulRedemption(c *gin.Context) {
	var req models.AnnulRequest
	if !h.bindJSON(c, &req) {
		return
	}

	response, err := h.services.Annulments.Annul(c.Request.Context(), c.Param("id"), req.Reason, req.Operator)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response)
}

// DailyReport - GET /api/reports/daily
// Дневной отчёт: погашения по категориям, выручка, аннулирования
func (h *Handlers) DailyReport(c *gin.Context) {
	report, err := h.services.Reports.Daily(c.Request.Context(), c.Query("from"), c.Query("to"))
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, report)
}
