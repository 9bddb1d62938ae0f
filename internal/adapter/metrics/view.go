package metrics

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	apperrors "github.com/pscheid92/wastepoints/internal/errors"
)

// ViewMetrics tracks the local JSON view server. Only /api routes are
// recorded; probes, /version and /metrics are left out.
type ViewMetrics struct {
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	Rejections      *prometheus.CounterVec
}

func NewViewMetrics(reg prometheus.Registerer) *ViewMetrics {
	m := &ViewMetrics{
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "view",
			Name:      "requests_total",
			Help:      "View server requests by surface, route and status class.",
		}, []string{"surface", "method", "route", "status_class"}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "view",
			Name:      "request_duration_seconds",
			Help:      "View server latency by surface. Waste routes include the backend round trip.",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"surface"}),
		Rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "view",
			Name:      "rejections_total",
			Help:      "View requests turned away before reaching the backend.",
		}, []string{"reason"}),
	}
	if reg != nil {
		reg.MustRegister(m.RequestsTotal, m.RequestDuration, m.Rejections)
	}
	return m
}

// Surface groups a route: "session" for sign-in state, "waste" for the
// rewards data, "" for routes that are not recorded.
func Surface(route string) string {
	switch route {
	case "/api/session", "/api/login", "/api/signup", "/api/logout":
		return "session"
	}
	if strings.HasPrefix(route, "/api/") {
		return "waste"
	}
	return ""
}

// Middleware records each /api request. Handler errors have not been
// rendered yet at this point, so their status is derived from the error.
func (m *ViewMetrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			route := c.Path()
			surface := Surface(route)
			if surface == "" {
				return next(c)
			}

			timer := prometheus.NewTimer(m.RequestDuration.WithLabelValues(surface))
			err := next(c)
			timer.ObserveDuration()

			status := c.Response().Status
			if err != nil {
				status = statusOf(err)
			}
			m.RequestsTotal.WithLabelValues(surface, c.Request().Method, route, statusClass(status)).Inc()

			switch status {
			case http.StatusUnauthorized:
				m.Rejections.WithLabelValues("unauthenticated").Inc()
			case http.StatusTooManyRequests:
				m.Rejections.WithLabelValues("rate_limited").Inc()
			}
			return err
		}
	}
}

func statusOf(err error) int {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code
	}
	return apperrors.AsStructuredError(err).HTTPStatus()
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
