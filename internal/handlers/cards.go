package handlers

import (
	"net/http"
	"strings"

	"tessera/internal/models"

	"github.com/gin-gonic/gin"
)

// Cards handlers

// IssueCard - POST /api/cards
// Выпустить карту для зарегистрированного человека
func (h *Handlers) IssueCard(c *gin.Context) {
	var req models.IssueCardRequest
	if !h.bindJSON(c, &req) {
		return
	}

	response, err := h.services.Cards.Issue(c.Request.Context(), &req)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, response)
}

// ListCards - GET /api/cards
// Список карт с поиском по имени или id
func (h *Handlers) ListCards(c *gin.Context) {
	limit, ok := h.queryInt(c, "limit")
	if !ok {
		return
	}
	offset, ok := h.queryInt(c, "offset")
	if !ok {
		return
	}

	items, err := h.services.Cards.List(c.Request.Context(), models.CardFilter{
		State:  models.CardState(c.Query("state")),
		Query:  strings.TrimSpace(c.Query("search")),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, items)
}

// SearchCards - GET /api/cards/search
// Полнотекстовый поиск карт
func (h *Handlers) SearchCards(c *gin.Context) {
	limit, ok := h.queryInt(c, "limit")
	if !ok {
		return
	}

	items, err := h.services.Cards.Search(c.Request.Context(), strings.TrimSpace(c.Query("q")), models.CardState(c.Query("state")), limit)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, items)
}

// ExpiringCards - GET /api/cards/expiring
// Активные карты, срок которых истекает в ближайшие дни
func (h *Handlers) ExpiringCards(c *gin.Context) {
	days, ok := h.queryInt(c, "days")
	if !ok {
		return
	}

	items, err := h.services.Cards.Expiring(c.Request.Context(), days)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, items)
}

// CardStats - GET /api/cards/stats
func (h *Handlers) CardStats(c *gin.Context) {
	stats, err := h.services.Cards.Stats(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, stats)
}

// VerifyToken - POST /api/cards/verify
// Проверить токен из QR-кода
func (h *Handlers) VerifyToken(c *gin.Context) {
	var req models.VerifyTokenRequest
	if !h.bindJSON(c, &req) {
		return
	}

	response, err := h.services.Verification.Verify(c.Request.Context(), req.Token)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response)
}

// GetCard - GET /api/cards/:id
// Карта с владельцем, событиями и отзывами
func (h *Handlers) GetCard(c *gin.Context) {
	details, err := h.services.Cards.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, details)
}

// RevokeCard - POST /api/cards/:id/revoke
// Отозвать карту
func (h *Handlers) RevokeCard(c *gin.Context) {
	var req models.RevokeCardRequest
	if !h.bindJSON(c, &req) {
		return
	}

	revocation, err := h.services.Revocations.Revoke(c.Request.Context(), c.Param("id"), req.Reason, req.Operator)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, revocation)
}

// RenewCard - POST /api/cards/:id/renew
// Перевыпустить карту
func (h *Handlers) RenewCard(c *gin.Context) {
	var req models.RenewCardRequest
	if !h.bindJSON(c, &req) {
		return
	}

	response, err := h.services.Cards.Renew(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, response)
}
