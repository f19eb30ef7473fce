package handlers

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"

	"salonflow/config"
	"salonflow/models"
	"salonflow/services/processor"
	"salonflow/utils"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const signatureHeader = "X-Webhook-Signature"

// WebhookHandler receives messaging-platform events. Delivery is
// at-least-once; the processor dedupes, so this handler only verifies,
// decodes and forwards.
func WebhookHandler(proc *processor.Processor) gin.HandlerFunc {
	return func(c *gin.Context) {
		logger := utils.GetLogger()

		body, err := io.ReadAll(io.LimitReader(c.Request.Body, 1<<20))
		if err != nil {
			utils.JSONError(c, http.StatusBadRequest, "failed to read request body", err.Error())
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(body))

		if secret := config.AppConfig.MessagingWebhookSecret; secret != "" {
			if !verifySignature(body, secret, c.GetHeader(signatureHeader)) {
				logger.Warn("webhook signature mismatch", zap.String("ip", c.ClientIP()))
				utils.JSONError(c, http.StatusUnauthorized, "invalid webhook signature", "")
				return
			}
		}

		var payload models.WebhookPayload
		if err := json.Unmarshal(body, &payload); err != nil {
			utils.JSONError(c, http.StatusBadRequest, "invalid webhook payload", err.Error())
			return
		}

		result, err := proc.HandleEvent(c.Request.Context(), &payload)
		if err != nil {
			logger.Error("webhook processing failed",
				zap.String("event", payload.Event), zap.Error(err))
			utils.JSONError(c, http.StatusInternalServerError, "failed to process event", err.Error())
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

func verifySignature(body []byte, secret, signature string) bool {
	if signature == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}
