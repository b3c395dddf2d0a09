package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/flicky/marketplace-api/internal/dto"
	"github.com/flicky/marketplace-api/internal/middleware"
	"github.com/flicky/marketplace-api/internal/service"
)

type HistoryHandler struct {
	historyService *service.HistoryService
}

func NewHistoryHandler(historyService *service.HistoryService) *HistoryHandler {
	return &HistoryHandler{historyService: historyService}
}

// Clear archives every settled order slice of the calling seller.
func (h *HistoryHandler) Clear(c *gin.Context) {
	result, err := h.historyService.ArchiveSellerOrders(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.ArchiveResponse{Archived: result.Archived, Skipped: result.Skipped})
}

func (h *HistoryHandler) ListSeller(c *gin.Context) {
	history, err := h.historyService.ListForSeller(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.ToHistoryResponses(history))
}

func (h *HistoryHandler) ListBuyer(c *gin.Context) {
	history, err := h.historyService.ListForBuyer(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.ToHistoryResponses(history))
}
