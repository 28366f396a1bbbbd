// Package metrics — коллекторы Prometheus для верификации и голосования.
// nil *Recorder допустим и ничего не пишет.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Recorder struct {
	codesIssued   prometheus.Counter
	verifications *prometheus.CounterVec
	votes         *prometheus.CounterVec
	rateLimited   *prometheus.CounterVec
	cases         *prometheus.CounterVec
	cleanupPurged *prometheus.CounterVec
	httpDuration  *prometheus.HistogramVec
}

// NewRecorder регистрирует метрики в переданном registry.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		codesIssued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "unveil_verification_codes_issued_total",
			Help: "Verification codes issued and handed to the mail sender",
		}),
		verifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "unveil_verifications_total",
			Help: "Code redemption attempts by outcome",
		}, []string{"outcome"}),
		votes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "unveil_votes_total",
			Help: "Vote attempts by outcome and identity method",
		}, []string{"outcome", "method"}),
		rateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "unveil_rate_limited_total",
			Help: "Requests rejected by a rate limit, by flow",
		}, []string{"flow"}),
		cases: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "unveil_case_submissions_total",
			Help: "Case submissions by outcome",
		}, []string{"outcome"}),
		cleanupPurged: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "unveil_cleanup_purged_total",
			Help: "Rows or entries removed by the cleanup job",
		}, []string{"kind"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "unveil_http_request_duration_seconds",
			Help:    "HTTP request latency by route and status",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}
	reg.MustRegister(r.codesIssued, r.verifications, r.votes, r.rateLimited, r.cases, r.cleanupPurged, r.httpDuration)
	return r
}

func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

func (r *Recorder) ObserveCodeIssued() {
	if r == nil {
		return
	}
	r.codesIssued.Inc()
}

func (r *Recorder) ObserveVerification(outcome string) {
	if r == nil {
		return
	}
	r.verifications.WithLabelValues(outcome).Inc()
}

func (r *Recorder) ObserveVote(outcome, method string) {
	if r == nil {
		return
	}
	r.votes.WithLabelValues(outcome, method).Inc()
}

func (r *Recorder) ObserveRateLimited(flow string) {
	if r == nil {
		return
	}
	r.rateLimited.WithLabelValues(flow).Inc()
}

func (r *Recorder) ObserveCaseSubmission(outcome string) {
	if r == nil {
		return
	}
	r.cases.WithLabelValues(outcome).Inc()
}

func (r *Recorder) ObserveCleanup(kind string, n int64) {
	if r == nil || n <= 0 {
		return
	}
	r.cleanupPurged.WithLabelValues(kind).Add(float64(n))
}

// Middleware меряет задержку по шаблону маршрута.
func (r *Recorder) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if r == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		r.httpDuration.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).
			Observe(time.Since(start).Seconds())
	}
}
