package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"subgate/internal/transport/http/flash"
	resp "subgate/internal/transport/http/response"
)

// RateLimit 全局令牌桶限速
func RateLimit(rps rate.Limit, burst int) gin.HandlerFunc {
	lim := rate.NewLimiter(rps, burst)
	return func(c *gin.Context) {
		if lim.Allow() {
			c.Next()
			return
		}
		c.AbortWithStatusJSON(http.StatusOK, resp.Error(resp.CodeTooManyRequests, "too many requests"))
	}
}

// RateLimitPerIP 每 IP 限速；用于回调类接口，超限返回真实 429 让对端稍后重试
func RateLimitPerIP(rps rate.Limit, burst int) gin.HandlerFunc {
	ips := newIPLimiter(rps, burst)
	return func(c *gin.Context) {
		if ips.allow(c.ClientIP()) {
			c.Next()
			return
		}
		c.AbortWithStatusJSON(http.StatusTooManyRequests, resp.Error(resp.CodeTooManyRequests, "too many requests"))
	}
}

// ThrottleForm 表单提交（登录/注册）每 IP 限速，超限回跳并提示
func ThrottleForm(rps rate.Limit, burst int, backTo string) gin.HandlerFunc {
	ips := newIPLimiter(rps, burst)
	return func(c *gin.Context) {
		if ips.allow(c.ClientIP()) {
			c.Next()
			return
		}
		flash.Set(c, flash.Error("Too many attempts. Please wait a moment and try again."))
		c.Redirect(http.StatusFound, backTo)
		c.Abort()
	}
}

const (
	ipIdleTTL   = 10 * time.Minute
	ipSweepSize = 10000
)

type ipEntry struct {
	lim  *rate.Limiter
	seen time.Time
}

type ipLimiter struct {
	mu    sync.Mutex
	rps   rate.Limit
	burst int
	m     map[string]*ipEntry
	now   func() time.Time
}

func newIPLimiter(rps rate.Limit, burst int) *ipLimiter {
	return &ipLimiter{rps: rps, burst: burst, m: make(map[string]*ipEntry), now: time.Now}
}

func (l *ipLimiter) allow(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	e, ok := l.m[ip]
	if !ok {
		if len(l.m) >= ipSweepSize {
			l.sweep(now)
		}
		e = &ipEntry{lim: rate.NewLimiter(l.rps, l.burst)}
		l.m[ip] = e
	}
	e.seen = now
	return e.lim.AllowN(now, 1)
}

// sweep 清掉长时间未出现的 IP，防止 map 无限增长；调用方持锁
func (l *ipLimiter) sweep(now time.Time) {
	for ip, e := range l.m {
		if now.Sub(e.seen) > ipIdleTTL {
			delete(l.m, ip)
		}
	}
}
