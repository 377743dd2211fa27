package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tablepos/service-coupon/internal/platform/domain"
)

// Envelope is the standard JSON body for every non-validation endpoint.
type Envelope struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *ErrorBody  `json:"error,omitempty"`
	Meta    *Meta       `json:"meta,omitempty"`
}

// ErrorBody describes a failed request.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Meta carries pagination details.
type Meta struct {
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
}

// Success writes a 200 envelope.
func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Envelope{Success: true, Data: data})
}

// Created writes a 201 envelope.
func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, Envelope{Success: true, Data: data})
}

// NoContent writes an empty 204.
func NoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

// Paginated writes a 200 envelope with pagination metadata.
func Paginated(c *gin.Context, data interface{}, total int64, page, limit int) {
	pages := 0
	if limit > 0 {
		pages = int((total + int64(limit) - 1) / int64(limit))
	}
	c.JSON(http.StatusOK, Envelope{
		Success: true,
		Data:    data,
		Meta:    &Meta{Page: page, Limit: limit, Total: total, TotalPages: pages},
	})
}

// BadRequest writes a 400 envelope.
func BadRequest(c *gin.Context, msg string) {
	abort(c, http.StatusBadRequest, "BAD_REQUEST", msg)
}

// Unauthorized writes a 401 envelope.
func Unauthorized(c *gin.Context, msg string) {
	Error(c, domain.NewUnauthorizedError(msg))
}

// Forbidden writes a 403 envelope.
func Forbidden(c *gin.Context, msg string) {
	Error(c, domain.NewForbiddenError(msg))
}

// Error maps a domain error kind to its HTTP status. Unknown errors become a
// 500 with a generic message so internals never leak to clients.
func Error(c *gin.Context, err error) {
	var de *domain.DomainError
	if !errors.As(err, &de) {
		abort(c, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		return
	}

	switch {
	case errors.Is(de, domain.ErrNotFound):
		abort(c, http.StatusNotFound, "NOT_FOUND", de.Error())
	case errors.Is(de, domain.ErrConflict):
		abort(c, http.StatusConflict, "CONFLICT", de.Error())
	case errors.Is(de, domain.ErrValidation):
		abort(c, http.StatusBadRequest, "VALIDATION_ERROR", de.Error())
	case errors.Is(de, domain.ErrUnauthorized):
		abort(c, http.StatusUnauthorized, "UNAUTHORIZED", de.Error())
	case errors.Is(de, domain.ErrForbidden):
		abort(c, http.StatusForbidden, "FORBIDDEN", de.Error())
	default:
		abort(c, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
	}
}

func abort(c *gin.Context, status int, code, msg string) {
	c.AbortWithStatusJSON(status, Envelope{
		Success: false,
		Error:   &ErrorBody{Code: code, Message: msg},
	})
}
