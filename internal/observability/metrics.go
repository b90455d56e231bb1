package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the service.
type Metrics struct {
	Questions      *prometheus.CounterVec
	AnswerDuration *prometheus.HistogramVec
	MessageUpdates *prometheus.CounterVec
	TokenRefreshes *prometheus.CounterVec

	gatherer prometheus.Gatherer
}

// NewMetrics registers the instruments on reg. A *prometheus.Registry is
// also used as the gatherer behind Handler.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	m := &Metrics{
		Questions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "questions_total",
			Help:      "Answered questions by outcome.",
		}, []string{"outcome"}),
		AnswerDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "answer_duration_seconds",
			Help:      "Time from receiving a question to the last message update.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 45, 60, 90},
		}, []string{"outcome"}),
		MessageUpdates: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "message_updates_total",
			Help:      "Slack message edits by kind.",
		}, []string{"final"}),
		TokenRefreshes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "token_refreshes_total",
			Help:      "Access token refreshes by result.",
		}, []string{"result"}),
		gatherer: prometheus.DefaultGatherer,
	}
	if g, ok := reg.(prometheus.Gatherer); ok {
		m.gatherer = g
	}
	return m
}

func (m *Metrics) QuestionFinished(outcome string, elapsed time.Duration) {
	m.Questions.WithLabelValues(outcome).Inc()
	m.AnswerDuration.WithLabelValues(outcome).Observe(elapsed.Seconds())
}

func (m *Metrics) MessageUpdated(final bool) {
	m.MessageUpdates.WithLabelValues(strconv.FormatBool(final)).Inc()
}

// TokenRefreshed matches the refresh hook of the token cache.
func (m *Metrics) TokenRefreshed(err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.TokenRefreshes.WithLabelValues(result).Inc()
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
