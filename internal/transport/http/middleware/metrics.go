package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"subgate/internal/domain"
)

var (
	httpReqTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "http_requests_total", Help: "Count of HTTP requests"},
		[]string{"path", "method", "status"},
	)
	httpLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Latency of HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"path", "method"},
	)
	accessDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "entitlement_decisions_total", Help: "Access gate decisions by entitlement state"},
		[]string{"access"},
	)
)

func init() { prometheus.MustRegister(httpReqTotal, httpLatency, accessDecisions) }

func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		httpReqTotal.WithLabelValues(path, c.Request.Method, strconv.Itoa(c.Writer.Status())).Inc()
		httpLatency.WithLabelValues(path, c.Request.Method).Observe(time.Since(start).Seconds())
	}
}

// ObserveAccess 记录一次权益判定
func ObserveAccess(a domain.Access) { accessDecisions.WithLabelValues(string(a)).Inc() }

// MetricsHandler /metrics 暴露
func MetricsHandler() gin.HandlerFunc { return gin.WrapH(promhttp.Handler()) }
