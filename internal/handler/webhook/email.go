package webhook

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hireflowhq/delivery-api/internal/model"
	"github.com/hireflowhq/delivery-api/internal/service/delivery"
)

// HandleEmailWebhook ingests the email provider's callback. The body is
// either a JSON array of events or a single event object; each event is
// processed independently, so one bad event never aborts its siblings.
func (h *Handler) HandleEmailWebhook(c *gin.Context) {
	timer := prometheus.NewTimer(h.metrics.WebhookProcessingMs.WithLabelValues(string(model.ChannelEmail)))
	defer timer.ObserveDuration()

	events, err := parseEmailBatch(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	h.metrics.WebhookBatchSize.WithLabelValues(string(model.ChannelEmail)).Observe(float64(len(events)))

	var downstream error
	for i := range events {
		if _, err := h.service.ApplyEmailEvent(c.Request.Context(), &events[i]); err != nil {
			h.logger.Error(err, "Failed to process email event",
				"event", events[i].Event, "message_id", events[i].MessageID)
			downstream = err
		}
	}

	// A store failure gets a 500 so the provider redelivers the batch;
	// replay is safe because applied transitions are idempotent.
	if downstream != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to process events"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

func parseEmailBatch(c *gin.Context) ([]delivery.EmailEvent, error) {
	var raw json.RawMessage
	if err := c.ShouldBindJSON(&raw); err != nil {
		return nil, err
	}

	var events []delivery.EmailEvent
	if err := json.Unmarshal(raw, &events); err == nil {
		return events, nil
	}

	var single delivery.EmailEvent
	if err := json.Unmarshal(raw, &single); err != nil {
		return nil, err
	}
	return []delivery.EmailEvent{single}, nil
}
