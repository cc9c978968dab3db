package handlers

import (
	"fmt"
	"net/http"
	"strconv"

	apperrors "tessera/internal/errors"
	"tessera/internal/logger"
	"tessera/internal/models"
	"tessera/internal/service"

	"github.com/gin-gonic/gin"
)

type Handlers struct {
	services *service.Services
	// production hides error details from responses
	production bool
}

func NewHandlers(services *service.Services, production bool) *Handlers {
	return &Handlers{
		services:   services,
		production: production,
	}
}

// statusOf maps an error kind to the HTTP status returned to the box office.
func statusOf(kind apperrors.Kind) int {
	switch kind {
	case apperrors.KindFormatInvalid, apperrors.KindPrefixInvalid, apperrors.KindInvalidInput:
		return http.StatusBadRequest
	case apperrors.KindNotFound, apperrors.KindEventNotFound:
		return http.StatusNotFound
	case apperrors.KindDuplicateRedemption, apperrors.KindActiveCardExists, apperrors.KindAlreadyAnnulled,
		apperrors.KindRevoked, apperrors.KindNotActive:
		return http.StatusConflict
	case apperrors.KindExpired, apperrors.KindWindowExpired:
		return http.StatusGone
	case apperrors.KindSignatureInvalid, apperrors.KindNotAnnullable:
		return http.StatusUnprocessableEntity
	case apperrors.KindContention:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// respondError пишет ошибку в едином формате {"ok":false,"error":code}
func (h *Handlers) respondError(c *gin.Context, err error) {
	kind := apperrors.KindOf(err)
	status := statusOf(kind)

	body := models.ErrorResponse{Error: apperrors.CodeOf(err)}
	if !h.production {
		body.Details = err.Error()
	}
	if status >= http.StatusInternalServerError {
		_ = c.Error(err)
		logger.WithContext(c.Request.Context()).Error("Request failed", "path", c.FullPath(), "error", err)
	}
	c.JSON(status, body)
}

// bindJSON binds the body and answers 400 on failure.
func (h *Handlers) bindJSON(c *gin.Context, dst interface{}) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		h.respondError(c, apperrors.Wrap(apperrors.ErrInvalidInput, err))
		return false
	}
	return true
}

// queryInt reads an optional non-negative integer query parameter.
func (h *Handlers) queryInt(c *gin.Context, name string) (int, bool) {
	raw := c.Query(name)
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		h.respondError(c, apperrors.Wrap(apperrors.ErrInvalidInput, fmt.Errorf("%s must be a non-negative integer", name)))
		return 0, false
	}
	return n, true
}
