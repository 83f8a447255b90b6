package webhook

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hireflowhq/delivery-api/internal/middleware"
	"github.com/hireflowhq/delivery-api/internal/model"
	"github.com/hireflowhq/delivery-api/internal/service/delivery"
	"github.com/hireflowhq/delivery-api/pkg/logger"
	"github.com/hireflowhq/delivery-api/pkg/metrics"
)

var testMetrics = metrics.NewMetrics("test", "webhook_handler")

type stubEmailRepo struct {
	byExternalID map[string]*model.EmailMessage
	failWith     error
	applied      int
}

func (s *stubEmailRepo) Create(ctx context.Context, m *model.EmailMessage) error { return nil }

func (s *stubEmailRepo) Get(ctx context.Context, id uuid.UUID) (*model.EmailMessage, error) {
	return nil, nil
}

func (s *stubEmailRepo) FindByExternalID(ctx context.Context, externalID string) (*model.EmailMessage, error) {
	if s.failWith != nil {
		return nil, s.failWith
	}
	return s.byExternalID[externalID], nil
}

func (s *stubEmailRepo) ApplyTransition(ctx context.Context, id uuid.UUID, tr *model.StatusTransition) (*model.EmailMessage, error) {
	if s.failWith != nil {
		return nil, s.failWith
	}
	for _, m := range s.byExternalID {
		if m.ID == id {
			s.applied++
			m.Status = tr.Status
			if tr.ErrorMessage != nil {
				m.ErrorMessage = tr.ErrorMessage
			}
			ts := tr.OccurredAt
			if tr.TimestampField == model.TimestampDelivered && m.DeliveredAt == nil {
				m.DeliveredAt = &ts
			}
			return m, nil
		}
	}
	return nil, nil
}

func (s *stubEmailRepo) LatestByConversations(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*model.EmailMessage, error) {
	return nil, nil
}

type stubWhatsAppRepo struct {
	byExternalID map[string]*model.WhatsAppMessage
	failWith     error
}

func (s *stubWhatsAppRepo) Create(ctx context.Context, m *model.WhatsAppMessage) error { return nil }

func (s *stubWhatsAppRepo) Get(ctx context.Context, id uuid.UUID) (*model.WhatsAppMessage, error) {
	return nil, nil
}

func (s *stubWhatsAppRepo) FindByExternalID(ctx context.Context, externalID string) (*model.WhatsAppMessage, error) {
	if s.failWith != nil {
		return nil, s.failWith
	}
	return s.byExternalID[externalID], nil
}

func (s *stubWhatsAppRepo) ApplyTransition(ctx context.Context, id uuid.UUID, tr *model.StatusTransition) (*model.WhatsAppMessage, error) {
	if s.failWith != nil {
		return nil, s.failWith
	}
	for _, m := range s.byExternalID {
		if m.ID == id {
			m.Status = tr.Status
			if tr.ErrorMessage != nil {
				m.ErrorMessage = tr.ErrorMessage
			}
			ts := tr.OccurredAt
			if tr.TimestampField == model.TimestampFailed && m.FailedAt == nil {
				m.FailedAt = &ts
			}
			return m, nil
		}
	}
	return nil, nil
}

func (s *stubWhatsAppRepo) LatestByConversations(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*model.WhatsAppMessage, error) {
	return nil, nil
}

func strPtr(s string) *string { return &s }

func newTestRouter(emails *stubEmailRepo, whatsapps *stubWhatsAppRepo) *gin.Engine {
	gin.SetMode(gin.TestMode)

	svc := delivery.NewService(emails, whatsapps, logger.NewLogger(nil), testMetrics)
	h := NewHandler(svc, logger.NewLogger(nil), testMetrics)

	engine := gin.New()
	engine.Use(middleware.CORS(middleware.DefaultCORSConfig()))
	h.RegisterRoutes(engine.Group("/webhooks"))
	return engine
}

func post(t *testing.T, engine *gin.Engine, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

func TestHandleEmailWebhook_BatchApplied(t *testing.T) {
	rec := &model.EmailMessage{
		ID:                uuid.New(),
		ConversationID:    uuid.New(),
		ExternalMessageID: strPtr("m1"),
		Status:            model.EmailStatusSent,
		SentAt:            time.Now().UTC(),
	}
	emails := &stubEmailRepo{byExternalID: map[string]*model.EmailMessage{"m1": rec}}
	engine := newTestRouter(emails, &stubWhatsAppRepo{byExternalID: map[string]*model.WhatsAppMessage{}})

	w := post(t, engine, "/webhooks/email",
		`[{"event":"delivered","email":"a@b.com","message-id":"m1","date":"2024-01-01T00:00:00Z"}]`)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"success":true}`, w.Body.String())
	assert.Equal(t, model.EmailStatusDelivered, rec.Status)
	require.NotNil(t, rec.DeliveredAt)
}

func TestHandleEmailWebhook_SingleObjectBody(t *testing.T) {
	rec := &model.EmailMessage{
		ID:                uuid.New(),
		ConversationID:    uuid.New(),
		ExternalMessageID: strPtr("m1"),
		Status:            model.EmailStatusSent,
	}
	emails := &stubEmailRepo{byExternalID: map[string]*model.EmailMessage{"m1": rec}}
	engine := newTestRouter(emails, &stubWhatsAppRepo{byExternalID: map[string]*model.WhatsAppMessage{}})

	w := post(t, engine, "/webhooks/email",
		`{"event":"delivered","message-id":"m1","date":"2024-01-01T00:00:00Z"}`)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, model.EmailStatusDelivered, rec.Status)
}

func TestHandleEmailWebhook_MalformedBody(t *testing.T) {
	emails := &stubEmailRepo{byExternalID: map[string]*model.EmailMessage{}}
	engine := newTestRouter(emails, &stubWhatsAppRepo{byExternalID: map[string]*model.WhatsAppMessage{}})

	w := post(t, engine, "/webhooks/email", `{not json`)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"error":"invalid payload"}`, w.Body.String())
}

func TestHandleEmailWebhook_MissingMessageIDStill200(t *testing.T) {
	emails := &stubEmailRepo{byExternalID: map[string]*model.EmailMessage{}}
	engine := newTestRouter(emails, &stubWhatsAppRepo{byExternalID: map[string]*model.WhatsAppMessage{}})

	w := post(t, engine, "/webhooks/email", `[{"event":"delivered","email":"a@b.com"}]`)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestHandleEmailWebhook_BatchIndependence(t *testing.T) {
	rec := &model.EmailMessage{
		ID:                uuid.New(),
		ConversationID:    uuid.New(),
		ExternalMessageID: strPtr("good"),
		Status:            model.EmailStatusSent,
	}
	emails := &stubEmailRepo{byExternalID: map[string]*model.EmailMessage{"good": rec}}
	engine := newTestRouter(emails, &stubWhatsAppRepo{byExternalID: map[string]*model.WhatsAppMessage{}})

	// Unknown id and missing id events must not stop the good one.
	w := post(t, engine, "/webhooks/email", `[
		{"event":"delivered","message-id":"unknown"},
		{"event":"delivered"},
		{"event":"delivered","message-id":"good","date":"2024-01-01T00:00:00Z"}
	]`)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, model.EmailStatusDelivered, rec.Status)
	assert.Equal(t, 1, emails.applied)
}

func TestHandleEmailWebhook_StoreFailure500(t *testing.T) {
	emails := &stubEmailRepo{failWith: assert.AnError}
	engine := newTestRouter(emails, &stubWhatsAppRepo{byExternalID: map[string]*model.WhatsAppMessage{}})

	w := post(t, engine, "/webhooks/email", `[{"event":"delivered","message-id":"m1"}]`)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error":"failed to process events"}`, w.Body.String())
}

func TestHandleWhatsAppWebhook_UndeliveredApplied(t *testing.T) {
	rec := &model.WhatsAppMessage{
		ID:                uuid.New(),
		ConversationID:    uuid.New(),
		ExternalMessageID: strPtr("w1"),
		Status:            model.WhatsAppStatusSent,
	}
	whatsapps := &stubWhatsAppRepo{byExternalID: map[string]*model.WhatsAppMessage{"w1": rec}}
	engine := newTestRouter(&stubEmailRepo{byExternalID: map[string]*model.EmailMessage{}}, whatsapps)

	w := post(t, engine, "/webhooks/whatsapp",
		`{"messageId":"w1","status":"undelivered","destination":"+15550001111","error":{"code":470,"message":"no network"}}`)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"received":true,"status":"undelivered"}`, w.Body.String())
	assert.Equal(t, model.WhatsAppStatusFailed, rec.Status)
	require.NotNil(t, rec.ErrorMessage)
	assert.Equal(t, "no network", *rec.ErrorMessage)
	assert.NotNil(t, rec.FailedAt)
}

func TestHandleWhatsAppWebhook_MalformedBody(t *testing.T) {
	engine := newTestRouter(
		&stubEmailRepo{byExternalID: map[string]*model.EmailMessage{}},
		&stubWhatsAppRepo{byExternalID: map[string]*model.WhatsAppMessage{}},
	)

	w := post(t, engine, "/webhooks/whatsapp", `not json at all`)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleWhatsAppWebhook_MissingMessageIDStill200(t *testing.T) {
	engine := newTestRouter(
		&stubEmailRepo{byExternalID: map[string]*model.EmailMessage{}},
		&stubWhatsAppRepo{byExternalID: map[string]*model.WhatsAppMessage{}},
	)

	w := post(t, engine, "/webhooks/whatsapp", `{"status":"delivered"}`)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestHandleWhatsAppWebhook_StoreFailure500(t *testing.T) {
	whatsapps := &stubWhatsAppRepo{failWith: assert.AnError}
	engine := newTestRouter(&stubEmailRepo{byExternalID: map[string]*model.EmailMessage{}}, whatsapps)

	w := post(t, engine, "/webhooks/whatsapp", `{"messageId":"w1","status":"delivered"}`)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestWebhookPreflight(t *testing.T) {
	engine := newTestRouter(
		&stubEmailRepo{byExternalID: map[string]*model.EmailMessage{}},
		&stubWhatsAppRepo{byExternalID: map[string]*model.WhatsAppMessage{}},
	)

	req := httptest.NewRequest(http.MethodOptions, "/webhooks/email", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", "POST")
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Body.String())
	assert.NotEmpty(t, w.Header().Get("Access-Control-Allow-Methods"))
}
