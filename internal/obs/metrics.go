package obs

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metricas HTTP generales.
var (
	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_in_flight_requests",
		Help: "In-flight HTTP requests.",
	})

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)
)

// Metricas del core de auth.
var (
	authFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_failures_total",
			Help: "Rejected requests by guard stage.",
		},
		[]string{"reason"},
	)

	otpIssuedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "otp_issued_total",
			Help: "One-time passcodes issued by purpose.",
		},
		[]string{"purpose"},
	)

	otpVerificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "otp_verifications_total",
			Help: "OTP verification outcomes.",
		},
		[]string{"result"},
	)

	presignedURLsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "presigned_urls_total",
			Help: "Presigned object storage URLs by method.",
		},
		[]string{"method"},
	)

	serviceTokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "service_tokens_issued_total",
			Help: "Service tokens issued by role.",
		},
		[]string{"role"},
	)
)

var initOnce sync.Once

// Init registra las metricas en el registro por defecto. Es idempotente.
func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			httpInFlight, httpRequestsTotal, httpRequestDuration,
			authFailuresTotal, otpIssuedTotal, otpVerificationsTotal,
			presignedURLsTotal, serviceTokensTotal,
		)
	})
}

// Handler expone el endpoint de Prometheus.
func Handler() http.Handler {
	return promhttp.Handler()
}

// GinMiddleware mide RPS y latencia por ruta. Usa la plantilla de la ruta
// (FullPath) para no disparar la cardinalidad con ids.
func GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		httpInFlight.Inc()
		start := time.Now()

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := strconv.Itoa(c.Writer.Status())
		httpRequestDuration.WithLabelValues(c.Request.Method, route, status).Observe(time.Since(start).Seconds())
		httpRequestsTotal.WithLabelValues(c.Request.Method, route, status).Inc()
		httpInFlight.Dec()
	}
}

func AuthFailure(reason string) {
	authFailuresTotal.WithLabelValues(reason).Inc()
}

func OTPIssued(purpose string) {
	otpIssuedTotal.WithLabelValues(purpose).Inc()
}

func OTPVerification(result string) {
	otpVerificationsTotal.WithLabelValues(result).Inc()
}

func PresignedURL(method string) {
	presignedURLsTotal.WithLabelValues(method).Inc()
}

func ServiceTokenIssued(role string) {
	serviceTokensTotal.WithLabelValues(role).Inc()
}
