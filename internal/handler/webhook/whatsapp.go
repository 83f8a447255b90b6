package webhook

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hireflowhq/delivery-api/internal/model"
	"github.com/hireflowhq/delivery-api/internal/service/delivery"
)

// HandleWhatsAppWebhook ingests the WhatsApp provider's status callback,
// one event per call. A missing messageId is acknowledged with a 200 and
// discarded; making the provider retry cannot ever produce an id.
func (h *Handler) HandleWhatsAppWebhook(c *gin.Context) {
	timer := prometheus.NewTimer(h.metrics.WebhookProcessingMs.WithLabelValues(string(model.ChannelWhatsApp)))
	defer timer.ObserveDuration()

	var ev delivery.WhatsAppEvent
	if err := c.ShouldBindJSON(&ev); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	h.metrics.WebhookBatchSize.WithLabelValues(string(model.ChannelWhatsApp)).Observe(1)

	if _, err := h.service.ApplyWhatsAppEvent(c.Request.Context(), &ev); err != nil {
		h.logger.Error(err, "Failed to process whatsapp event",
			"status", ev.Status, "message_id", ev.MessageID)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to process event"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"received": true, "status": ev.Status})
}
