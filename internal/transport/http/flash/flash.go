// Package flash 一次性提示消息，存放在短期 cookie 中，读取即清除。
package flash

import (
	"encoding/base64"
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
)

const CookieName = "subgate_flash"

const (
	TypeSuccess = "success"
	TypeError   = "error"
	TypeInfo    = "info"
)

type Message struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func Success(text string) Message { return Message{Type: TypeSuccess, Text: text} }
func Error(text string) Message   { return Message{Type: TypeError, Text: text} }
func Info(text string) Message    { return Message{Type: TypeInfo, Text: text} }

func Set(c *gin.Context, m Message) {
	b, err := json.Marshal(m)
	if err != nil {
		return
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(CookieName, base64.RawURLEncoding.EncodeToString(b), 300, "/", "", false, true)
}

// Pop 读取并清除
func Pop(c *gin.Context) *Message {
	raw, err := c.Cookie(CookieName)
	if err != nil || raw == "" {
		return nil
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(CookieName, "", -1, "/", "", false, true)

	b, err := base64.RawURLEncoding.DecodeString(raw)
	if err != nil {
		return nil
	}
	var m Message
	if err := json.Unmarshal(b, &m); err != nil || m.Text == "" {
		return nil
	}
	return &m
}
