package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/flicky/marketplace-api/internal/service"
)

var errorStatus = []struct {
	err    error
	status int
}{
	{service.ErrUnauthenticated, http.StatusUnauthorized},
	{service.ErrInvalidCredentials, http.StatusUnauthorized},
	{service.ErrForbidden, http.StatusForbidden},
	{service.ErrOrderAccessDenied, http.StatusForbidden},
	{service.ErrCannotDeleteSelf, http.StatusForbidden},
	{service.ErrUserNotFound, http.StatusNotFound},
	{service.ErrProductNotFound, http.StatusNotFound},
	{service.ErrOrderNotFound, http.StatusNotFound},
	{service.ErrAddressNotFound, http.StatusNotFound},
	{service.ErrCartItemNotFound, http.StatusNotFound},
	{service.ErrOutOfStock, http.StatusConflict},
	{service.ErrInsufficientStock, http.StatusConflict},
	{service.ErrStockLimitReached, http.StatusConflict},
	{service.ErrInvalidTransition, http.StatusConflict},
	{service.ErrCheckoutInFlight, http.StatusConflict},
	{service.ErrDuplicateProduct, http.StatusConflict},
	{service.ErrDuplicateAddress, http.StatusConflict},
	{service.ErrUserAlreadyExists, http.StatusConflict},
	{service.ErrInvalidQuantity, http.StatusBadRequest},
	{service.ErrInvalidRole, http.StatusBadRequest},
	{service.ErrEmptyCart, http.StatusBadRequest},
	{service.ErrInvalidUpload, http.StatusBadRequest},
	{service.ErrTooManyImages, http.StatusUnprocessableEntity},
	{service.ErrInvalidProduct, http.StatusUnprocessableEntity},
}

// respondError maps service errors to HTTP responses. Anything unknown is
// logged and hidden behind a 500.
func respondError(c *gin.Context, err error) {
	if errors.Is(err, service.ErrContention) {
		c.JSON(http.StatusConflict, gin.H{"error": "the request conflicted with a concurrent update, please retry", "retryable": true})
		return
	}
	for _, e := range errorStatus {
		if errors.Is(err, e.err) {
			c.JSON(e.status, gin.H{"error": err.Error()})
			return
		}
	}
	slog.ErrorContext(c.Request.Context(), "request failed", "method", c.Request.Method, "path", c.FullPath(), "error", err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg})
}
