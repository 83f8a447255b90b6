// Package deliveries serves the viewer-facing read side: the bulk
// "latest status per conversation" fetch clients seed from, and a
// Server-Sent Events stream backed by a per-viewer tracker.
package deliveries

import (
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"

	"github.com/hireflowhq/delivery-api/internal/aggregator"
	"github.com/hireflowhq/delivery-api/internal/handler"
	"github.com/hireflowhq/delivery-api/internal/model"
	"github.com/hireflowhq/delivery-api/pkg/logger"
	"github.com/hireflowhq/delivery-api/pkg/messaging"
	"github.com/hireflowhq/delivery-api/pkg/metrics"
)

// maxConversationIDs bounds one viewer's tracked set; the UI never
// displays more than a page of conversations at once.
const maxConversationIDs = 100

type Handler struct {
	store   aggregator.Store
	broker  messaging.Broker
	logger  *logger.Logger
	metrics *metrics.Metrics
	cache   *gocache.Cache
}

func NewHandler(store aggregator.Store, broker messaging.Broker, logger *logger.Logger, metrics *metrics.Metrics) *Handler {
	// Delivery status is advisory, so a few seconds of staleness on the
	// bulk fetch is an acceptable trade for webhook-burst read load.
	return &Handler{
		store:   store,
		broker:  broker,
		logger:  logger,
		metrics: metrics,
		cache:   gocache.New(5*time.Second, time.Minute),
	}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/deliveries/latest", h.Latest)
	r.GET("/deliveries/stream", h.Stream)
}

type latestResponse struct {
	Email    map[uuid.UUID]*model.DeliveryView `json:"email"`
	WhatsApp map[uuid.UUID]*model.DeliveryView `json:"whatsapp"`
}

// Latest returns the most recently created record per conversation on
// each channel, for the requested conversation id set.
func (h *Handler) Latest(c *gin.Context) {
	ids, err := parseConversationIDs(c.Query("conversation_ids"))
	if err != nil {
		c.JSON(statusFor(err), handler.NewErrorResponse(err.Error()))
		return
	}

	cacheKey := cacheKeyFor(ids)
	if cached, ok := h.cache.Get(cacheKey); ok {
		c.JSON(http.StatusOK, handler.NewSuccessResponse(cached))
		return
	}

	ctx := c.Request.Context()

	emails, err := h.store.LatestEmailByConversations(ctx, ids)
	if err != nil {
		h.logger.Error(err, "Failed to fetch latest email deliveries")
		c.JSON(http.StatusInternalServerError, handler.NewErrorResponse("failed to fetch deliveries"))
		return
	}

	whatsapps, err := h.store.LatestWhatsAppByConversations(ctx, ids)
	if err != nil {
		h.logger.Error(err, "Failed to fetch latest whatsapp deliveries")
		c.JSON(http.StatusInternalServerError, handler.NewErrorResponse("failed to fetch deliveries"))
		return
	}

	resp := latestResponse{
		Email:    make(map[uuid.UUID]*model.DeliveryView, len(emails)),
		WhatsApp: make(map[uuid.UUID]*model.DeliveryView, len(whatsapps)),
	}
	for convID, msg := range emails {
		resp.Email[convID] = msg.View()
	}
	for convID, msg := range whatsapps {
		resp.WhatsApp[convID] = msg.View()
	}

	h.cache.SetDefault(cacheKey, resp)
	c.JSON(http.StatusOK, handler.NewSuccessResponse(resp))
}

// Stream pushes live delivery updates for one channel over Server-Sent
// Events. The tracker is scoped to this request: it is released the
// moment the client disconnects.
func (h *Handler) Stream(c *gin.Context) {
	channel := model.Channel(c.DefaultQuery("channel", string(model.ChannelEmail)))
	if channel != model.ChannelEmail && channel != model.ChannelWhatsApp {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("unknown channel"))
		return
	}

	ids, err := parseConversationIDs(c.Query("conversation_ids"))
	if err != nil {
		c.JSON(statusFor(err), handler.NewErrorResponse(err.Error()))
		return
	}

	tracker := aggregator.NewTracker(h.store, h.broker, channel, h.logger, h.metrics)
	defer tracker.Close()

	if err := tracker.Track(c.Request.Context(), ids); err != nil {
		h.logger.Error(err, "Failed to subscribe delivery stream", "channel", string(channel))
		c.JSON(http.StatusInternalServerError, handler.NewErrorResponse("failed to subscribe"))
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	c.SSEvent("snapshot", tracker.Snapshot())
	c.Writer.Flush()

	clientGone := c.Request.Context().Done()
	for {
		select {
		case <-clientGone:
			return
		case view := <-tracker.Updates():
			c.SSEvent("update", view)
			c.Writer.Flush()
		}
	}
}

func parseConversationIDs(raw string) ([]uuid.UUID, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, errEmptyIDs
	}

	parts := strings.Split(raw, ",")
	if len(parts) > maxConversationIDs {
		return nil, errTooManyIDs
	}

	ids := make([]uuid.UUID, 0, len(parts))
	for _, p := range parts {
		id, err := uuid.Parse(strings.TrimSpace(p))
		if err != nil {
			return nil, errInvalidID
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func cacheKeyFor(ids []uuid.UUID) string {
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = id.String()
	}
	sort.Strings(keys)
	return strings.Join(keys, ",")
}
