package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Registry holds all Prometheus metrics.
type Registry struct {
	*prometheus.Registry

	// HTTP metrics
	httpRequestsTotal    *prometheus.CounterVec
	httpRequestDuration  *prometheus.HistogramVec
	httpRequestsInFlight prometheus.Gauge

	// Competition metrics
	ticksTotal         *prometheus.CounterVec
	signalsTotal       *prometheus.CounterVec
	ordersTotal        *prometheus.CounterVec
	competitorScore    *prometheus.GaugeVec
	eliminationsTotal  prometheus.Counter
	alertsTotal        *prometheus.CounterVec
	competitionsTotal  *prometheus.CounterVec
	activeCompetitions prometheus.Gauge
	tickDuration       *prometheus.HistogramVec

	// Evolution metrics
	evolutionGeneration  prometheus.Gauge
	evolutionBestFitness prometheus.Gauge
	jobsActive           *prometheus.GaugeVec
}

// NewRegistry creates a new metrics registry with all metrics registered.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()

	// Register Go runtime metrics
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	r := &Registry{
		Registry: reg,

		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),

		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		httpRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently in flight",
			},
		),
	}

	reg.MustRegister(r.httpRequestsTotal)
	reg.MustRegister(r.httpRequestDuration)
	reg.MustRegister(r.httpRequestsInFlight)

	r.ticksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arena_ticks_total",
			Help: "Total number of engine loop ticks",
		},
		[]string{"loop"},
	)
	r.tickDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "arena_tick_duration_seconds",
			Help:    "Engine loop tick duration in seconds",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		},
		[]string{"loop"},
	)
	r.signalsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arena_signals_total",
			Help: "Total number of strategy signals by admission result",
		},
		[]string{"result"},
	)
	r.ordersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arena_orders_total",
			Help: "Total number of submitted orders by outcome",
		},
		[]string{"result"},
	)
	r.competitorScore = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "arena_competitor_score",
			Help: "Latest composite score per competitor",
		},
		[]string{"competition", "competitor"},
	)
	r.eliminationsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "arena_eliminations_total",
			Help: "Total number of eliminated competitors",
		},
	)
	r.alertsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arena_alerts_total",
			Help: "Total number of fired standings alerts by severity",
		},
		[]string{"severity"},
	)
	r.competitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arena_competitions_total",
			Help: "Total number of competition lifecycle transitions",
		},
		[]string{"event"},
	)
	r.activeCompetitions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "arena_competitions_active",
			Help: "Number of competitions currently running or paused",
		},
	)
	r.evolutionGeneration = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "arena_evolution_generation",
			Help: "Generation of the most recently evolved population",
		},
	)
	r.evolutionBestFitness = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "arena_evolution_best_fitness",
			Help: "Best fitness observed in the most recent generation",
		},
	)
	r.jobsActive = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "arena_jobs_active",
			Help: "Number of active jobs",
		},
		[]string{"type"},
	)

	reg.MustRegister(r.ticksTotal)
	reg.MustRegister(r.tickDuration)
	reg.MustRegister(r.signalsTotal)
	reg.MustRegister(r.ordersTotal)
	reg.MustRegister(r.competitorScore)
	reg.MustRegister(r.eliminationsTotal)
	reg.MustRegister(r.alertsTotal)
	reg.MustRegister(r.competitionsTotal)
	reg.MustRegister(r.activeCompetitions)
	reg.MustRegister(r.evolutionGeneration)
	reg.MustRegister(r.evolutionBestFitness)
	reg.MustRegister(r.jobsActive)

	return r
}

// All recorders are safe on a nil *Registry so components can run without
// metrics wired.

// RecordRequest records metrics for an HTTP request.
func (r *Registry) RecordRequest(method, path string, status int, duration float64) {
	if r == nil {
		return
	}
	statusStr := statusToString(status)
	r.httpRequestsTotal.WithLabelValues(method, path, statusStr).Inc()
	r.httpRequestDuration.WithLabelValues(method, path).Observe(duration)
}

// InFlightInc increments in-flight requests.
func (r *Registry) InFlightInc() {
	if r == nil {
		return
	}
	r.httpRequestsInFlight.Inc()
}

// InFlightDec decrements in-flight requests.
func (r *Registry) InFlightDec() {
	if r == nil {
		return
	}
	r.httpRequestsInFlight.Dec()
}

// RecordTick records one engine loop tick.
func (r *Registry) RecordTick(loop string, duration float64) {
	if r == nil {
		return
	}
	r.ticksTotal.WithLabelValues(loop).Inc()
	r.tickDuration.WithLabelValues(loop).Observe(duration)
}

// RecordSignal records a signal and whether it passed the admission gate.
func (r *Registry) RecordSignal(result string) {
	if r == nil {
		return
	}
	r.signalsTotal.WithLabelValues(result).Inc()
}

// RecordOrder records an order outcome.
func (r *Registry) RecordOrder(result string) {
	if r == nil {
		return
	}
	r.ordersTotal.WithLabelValues(result).Inc()
}

// SetCompetitorScore publishes a competitor's latest score.
func (r *Registry) SetCompetitorScore(competition, competitor string, score float64) {
	if r == nil {
		return
	}
	r.competitorScore.WithLabelValues(competition, competitor).Set(score)
}

// RecordElimination records an eliminated competitor.
func (r *Registry) RecordElimination() {
	if r == nil {
		return
	}
	r.eliminationsTotal.Inc()
}

// RecordAlert records a fired standings alert.
func (r *Registry) RecordAlert(severity string) {
	if r == nil {
		return
	}
	r.alertsTotal.WithLabelValues(severity).Inc()
}

// RecordCompetition records a lifecycle transition and keeps the active gauge in step.
func (r *Registry) RecordCompetition(event string) {
	if r == nil {
		return
	}
	r.competitionsTotal.WithLabelValues(event).Inc()
	switch event {
	case "started":
		r.activeCompetitions.Inc()
	case "finished":
		r.activeCompetitions.Dec()
	}
}

// RecordGeneration records an evolved generation.
func (r *Registry) RecordGeneration(generation int, bestFitness float64) {
	if r == nil {
		return
	}
	r.evolutionGeneration.Set(float64(generation))
	r.evolutionBestFitness.Set(bestFitness)
}

// SetJobsActive sets the number of active jobs of a type.
func (r *Registry) SetJobsActive(jobType string, count int) {
	if r == nil {
		return
	}
	r.jobsActive.WithLabelValues(jobType).Set(float64(count))
}

func statusToString(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	case status >= 200:
		return "2xx"
	default:
		return "1xx"
	}
}
