package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
)

const HeaderWebhookToken = "X-Webhook-Token"

// WebhookToken verifies a shared-secret header on the ingestion
// endpoints. With an empty token the check is disabled, preserving the
// open-ingestion behavior for providers that cannot send custom
// headers.
func WebhookToken(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token == "" {
			c.Next()
			return
		}

		got := c.GetHeader(HeaderWebhookToken)
		if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid webhook token"})
			return
		}
		c.Next()
	}
}
