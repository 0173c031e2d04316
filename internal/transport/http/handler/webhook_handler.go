package handler

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"subgate/internal/core/config"
	"subgate/internal/domain"
	"subgate/internal/service"
	mdw "subgate/internal/transport/http/middleware"
)

const EventPaymentSucceeded = "payment.succeeded"

// WebhookPayload 支付渠道回调体；metadata.user_id 来自 /upgrade 时带出的关联参数
type WebhookPayload struct {
	Event  string `json:"event"`
	Object struct {
		ID       string            `json:"id"`
		Status   string            `json:"status"`
		Metadata map[string]string `json:"metadata"`
	} `json:"object"`
}

type WebhookHandler struct {
	svc    *service.UserService
	secret string
	header string
	log    *zap.Logger
}

func NewWebhookHandler(svc *service.UserService, p config.Payment, l *zap.Logger) *WebhookHandler {
	header := p.SignatureHeader
	if header == "" {
		header = "X-Signature"
	}
	return &WebhookHandler{svc: svc, secret: p.WebhookSecret, header: header, log: l}
}

// Sign HMAC-SHA256(body)，base64 编码
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func (h *WebhookHandler) verify(body []byte, signature string) bool {
	if signature == "" {
		return false
	}
	return hmac.Equal([]byte(Sign(h.secret, body)), []byte(signature))
}

// Receive 回调入口。不使用 resp 信封：支付渠道只认 HTTP 状态码，非 2xx 会重投
func (h *WebhookHandler) Receive(c *gin.Context) {
	const op = "handler.webhook"
	log := h.log.With(zap.String("op", op), zap.String("rid", c.GetString(mdw.KeyRequestID)))

	if h.secret == "" {
		log.Warn("webhook secret not configured; rejecting callback")
		c.Status(http.StatusServiceUnavailable)
		return
	}
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		log.Warn("read webhook body failed", zap.Error(err))
		c.Status(http.StatusBadRequest)
		return
	}
	if !h.verify(body, c.GetHeader(h.header)) {
		log.Warn("invalid or missing webhook signature")
		c.Status(http.StatusUnauthorized)
		return
	}

	var p WebhookPayload
	if err := json.Unmarshal(body, &p); err != nil {
		log.Warn("decode webhook payload failed", zap.Error(err))
		c.Status(http.StatusBadRequest)
		return
	}
	if strings.ToLower(p.Event) != EventPaymentSucceeded {
		log.Info("ignored webhook event", zap.String("event", p.Event))
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
		return
	}
	userID := p.Object.Metadata["user_id"]
	if userID == "" || p.Object.ID == "" {
		log.Warn("webhook missing user_id or payment id", zap.String("payment_id", p.Object.ID))
		c.Status(http.StatusBadRequest)
		return
	}

	_, applied, err := h.svc.ConfirmPayment(c.Request.Context(), userID, p.Object.ID)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		// 重试也不会成功，确认收到即可
		log.Warn("webhook for unknown user", zap.String("user_id", userID), zap.String("payment_id", p.Object.ID))
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
		return
	case err != nil:
		log.Error("confirm payment failed", zap.String("user_id", userID), zap.Error(err))
		c.Status(http.StatusInternalServerError)
		return
	}

	status := "applied"
	if !applied {
		status = "duplicate"
	}
	log.Info("webhook processed", zap.String("event", p.Event), zap.String("payment_id", p.Object.ID), zap.String("status", status))
	c.JSON(http.StatusOK, gin.H{"status": status})
}
