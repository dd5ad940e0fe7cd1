package handlers

import (
	"net/http"
	"time"

	"checkout-svc/gateway"
	"checkout-svc/webhook"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type WebhookHandler struct {
	processor     *webhook.Processor
	signingSecret string
	logger        *zap.Logger
}

func NewWebhookHandler(processor *webhook.Processor, signingSecret string, logger *zap.Logger) *WebhookHandler {
	return &WebhookHandler{processor: processor, signingSecret: signingSecret, logger: logger}
}

// Receive handles POST /checkout/webhook. Signature verification runs against
// the exact raw body. Unprocessable events are acknowledged with 200 so the
// gateway does not retry conditions that cannot resolve.
func (h *WebhookHandler) Receive(c *gin.Context) {
	payload, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read body"})
		return
	}

	header := c.GetHeader(gateway.SignatureHeader)
	if err := gateway.VerifySignature(payload, header, h.signingSecret, time.Now()); err != nil {
		h.logger.Warn("Webhook signature rejected", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid signature"})
		return
	}

	evt, err := gateway.ParseEvent(payload)
	if err != nil {
		// Malformed but authentic; acknowledge so the gateway stops retrying.
		h.logger.Warn("Unparseable webhook event acknowledged", zap.Error(err))
		c.JSON(http.StatusOK, gin.H{"received": true})
		return
	}

	if err := h.processor.Process(c.Request.Context(), evt); err != nil {
		h.logger.Error("Webhook processing failed",
			zap.String("event_id", evt.ID),
			zap.String("event_type", string(evt.Type)),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Processing failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"received": true})
}
