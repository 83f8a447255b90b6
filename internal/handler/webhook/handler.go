// Package webhook exposes the provider-facing ingestion endpoints. Both
// endpoints are invoked cross-origin by third-party infrastructure and
// assume at-least-once delivery: anything parseable gets a 200 so the
// provider does not retry forever, a 5xx is reserved for store failures
// worth retrying.
package webhook

import (
	"github.com/gin-gonic/gin"

	"github.com/hireflowhq/delivery-api/internal/service/delivery"
	"github.com/hireflowhq/delivery-api/pkg/logger"
	"github.com/hireflowhq/delivery-api/pkg/metrics"
)

type Handler struct {
	service *delivery.Service
	logger  *logger.Logger
	metrics *metrics.Metrics
}

func NewHandler(service *delivery.Service, logger *logger.Logger, metrics *metrics.Metrics) *Handler {
	return &Handler{service: service, logger: logger, metrics: metrics}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/email", h.HandleEmailWebhook)
	r.POST("/whatsapp", h.HandleWhatsAppWebhook)
}
