package router

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"subgate/internal/core/auth"
	"subgate/internal/core/config"
	"subgate/internal/core/server"
	"subgate/internal/service"
	"subgate/internal/transport/http/cookie"
	"subgate/internal/transport/http/ez"
	mdw "subgate/internal/transport/http/middleware"
)

// Deps 两个 engine 的全部依赖，由 main 组装后显式传入
type Deps struct {
	Log      *zap.Logger
	Users    *service.UserService
	Sessions *auth.Sessions
	Cookies  *cookie.Manager
	Admin    auth.AdminCredentials
	Cfg      *config.Config
}

func (d Deps) loginLimit(backTo string) gin.HandlerFunc {
	l := d.Cfg.Limits
	return mdw.ThrottleForm(rate.Limit(l.LoginRPS), l.LoginBurst, backTo)
}

// newEngine 公共中间件 + 健康检查 + /metrics
func newEngine(d Deps) *gin.Engine {
	ez.RegisterValidators()
	l := d.Cfg.Limits

	r := server.NewRouter(d.Log)
	r.Use(
		mdw.RequestID(),
		mdw.RateLimit(rate.Limit(l.RPS), l.Burst),
		mdw.ConcurrencyLimit(l.MaxConcurrent),
		mdw.MaxBodyBytes(l.MaxBodyBytes),
		mdw.Timeout(time.Duration(l.RequestTimeoutSec)*time.Second),
		mdw.Recovery(d.Log),
		mdw.Metrics(),
		mdw.AccessLog(d.Log),
	)

	health := func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"ok": 1}) }
	r.GET("/health", health)
	r.GET("/healthz", health)
	r.GET("/metrics", mdw.MetricsHandler())
	return r
}
