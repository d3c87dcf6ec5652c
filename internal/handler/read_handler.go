package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"briefd/internal/repository"
)

// ReadHandler exposes item and report reads to the surrounding API layer.
type ReadHandler struct {
	items   *repository.ItemRepository
	reports *repository.ReportRepository
}

func NewReadHandler(items *repository.ItemRepository, reports *repository.ReportRepository) *ReadHandler {
	return &ReadHandler{items: items, reports: reports}
}

// ListSourceItems handles GET /sources/:id/items
func (h *ReadHandler) ListSourceItems(c *gin.Context) {
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}

	items, err := h.items.ListBySource(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list items"})
		return
	}
	c.JSON(http.StatusOK, items)
}

// GetReport handles GET /reports/:id
func (h *ReadHandler) GetReport(c *gin.Context) {
	report, err := h.reports.FindByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "report not found"})
		return
	}
	c.JSON(http.StatusOK, report)
}
