package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"briefd/internal/ingest"
)

// InboundHandler receives inbound-email webhook events from the email
// delivery collaborator.
type InboundHandler struct {
	ingestService *ingest.Service
	logger        *zap.Logger
}

func NewInboundHandler(ingestService *ingest.Service, logger *zap.Logger) *InboundHandler {
	return &InboundHandler{
		ingestService: ingestService,
		logger:        logger,
	}
}

// ReceiveEmail handles POST /inbound/email. Routing misses return 204 like
// successes: the delivery collaborator must not retry them.
func (h *InboundHandler) ReceiveEmail(c *gin.Context) {
	var msg ingest.InboundEmail
	if err := c.ShouldBindJSON(&msg); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	if msg.Recipient == "" || msg.MessageID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "recipient and message_id are required"})
		return
	}

	if err := h.ingestService.HandleInbound(c.Request.Context(), msg); err != nil {
		h.logger.Error("Inbound email handling failed",
			zap.String("message_id", msg.MessageID),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "ingestion failed"})
		return
	}

	c.Status(http.StatusNoContent)
}
