package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Ingestion metrics
	TradesProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coordwatch_trades_processed_total",
			Help: "Total number of feed trades processed",
		},
		[]string{"status"}, // success, duplicate, filtered, error
	)

	PollDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "coordwatch_poll_duration_seconds",
			Help:    "Duration of a trade poll cycle",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
	)

	WalletsBackfilled = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "coordwatch_wallets_backfilled_total",
			Help: "Total number of wallets whose trade history was backfilled",
		},
	)

	// Detector metrics
	DetectorTrades = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coordwatch_detector_trades_total",
			Help: "Trades submitted to the detector",
		},
		[]string{"result"}, // accepted, dropped
	)

	PairAnalyses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coordwatch_pair_analyses_total",
			Help: "Total number of pairwise analyses",
		},
		[]string{"status"}, // computed, cached, skipped, error
	)

	WalletAnalyses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coordwatch_wallet_analyses_total",
			Help: "Total number of single-wallet analyses",
		},
		[]string{"coordinated"},
	)

	WalletAnalysisDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "coordwatch_wallet_analysis_duration_seconds",
			Help:    "Duration of a single-wallet analysis",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1},
		},
	)

	GroupsDetected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coordwatch_groups_detected_total",
			Help: "Coordinated groups produced by analyses",
		},
		[]string{"risk", "pattern"},
	)

	BatchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "coordwatch_batch_analysis_duration_seconds",
			Help:    "Duration of batch analyses",
			Buckets: []float64{.001, .01, .05, .1, .5, 1, 5, 10, 30},
		},
	)

	BatchWallets = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coordwatch_batch_wallets_total",
			Help: "Wallets processed by batch analyses",
		},
		[]string{"status"}, // analyzed, failed
	)

	CacheEvictions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coordwatch_pair_cache_evictions_total",
			Help: "Pair cache entries removed",
		},
		[]string{"reason"}, // invalidated, expired, cleared
	)

	DetectorEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coordwatch_detector_events_total",
			Help: "Detector events observed",
		},
		[]string{"type"},
	)

	TrackedWallets = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "coordwatch_tracked_wallets",
			Help: "Wallets with trades held by the detector",
		},
		[]string{"detector"},
	)

	StoredTrades = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "coordwatch_stored_trades",
			Help: "Trades held by the detector",
		},
		[]string{"detector"},
	)

	CacheEntries = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "coordwatch_pair_cache_entries",
			Help: "Pair analyses held in the cache",
		},
		[]string{"detector"},
	)

	IndexedGroups = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "coordwatch_indexed_groups",
			Help: "Coordinated groups held in the group index",
		},
		[]string{"detector"},
	)

	// Alert metrics
	AlertsTriggered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coordwatch_alerts_triggered_total",
			Help: "Total number of alerts triggered",
		},
		[]string{"severity"}, // ALERT, WARN, INFO
	)

	AlertsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coordwatch_alerts_sent_total",
			Help: "Total number of alerts sent",
		},
		[]string{"status", "type"}, // success/error, discord/smtp/log
	)

	AlertsSuppressed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "coordwatch_alerts_suppressed_total",
			Help: "Total number of alerts suppressed due to cooldown",
		},
	)

	// API metrics
	APIRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coordwatch_api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"api", "endpoint", "status"}, // data/gamma, /trades, success/error
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "coordwatch_api_request_duration_seconds",
			Help:    "Duration of API requests",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"api", "endpoint"},
	)

	// Database metrics
	DatabaseQueries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coordwatch_database_queries_total",
			Help: "Total number of database queries",
		},
		[]string{"operation", "status"},
	)

	DatabaseQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "coordwatch_database_query_duration_seconds",
			Help:    "Duration of database queries",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"operation"},
	)

	// Outcome resolution metrics
	MarketsResolved = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "coordwatch_markets_resolved_total",
			Help: "Total number of markets resolved",
		},
	)

	TradesResolved = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "coordwatch_trades_resolved_total",
			Help: "Total number of trades given a WIN or LOSS outcome",
		},
	)

	ResolutionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "coordwatch_resolution_duration_seconds",
			Help:    "Duration of outcome resolution runs",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300},
		},
	)

	// System health
	HealthChecks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coordwatch_health_checks_total",
			Help: "Total number of health check requests",
		},
		[]string{"status"}, // healthy/unhealthy
	)
)

// RecordTradeProcessing records the outcome of one feed trade
func RecordTradeProcessing(status string) {
	TradesProcessed.WithLabelValues(status).Inc()
}

// RecordPoll records a poll cycle duration
func RecordPoll(duration time.Duration) {
	PollDuration.Observe(duration.Seconds())
}

// RecordBackfill records a wallet history backfill
func RecordBackfill() {
	WalletsBackfilled.Inc()
}

// RecordTradesIngested records trades accepted and dropped by the detector
func RecordTradesIngested(accepted, dropped int) {
	DetectorTrades.WithLabelValues("accepted").Add(float64(accepted))
	DetectorTrades.WithLabelValues("dropped").Add(float64(dropped))
}

// RecordPairAnalysis records a pairwise analysis by status
func RecordPairAnalysis(status string) {
	PairAnalyses.WithLabelValues(status).Inc()
}

// RecordWalletAnalysis records a single-wallet analysis
func RecordWalletAnalysis(duration time.Duration, coordinated bool) {
	WalletAnalyses.WithLabelValues(strconv.FormatBool(coordinated)).Inc()
	WalletAnalysisDuration.Observe(duration.Seconds())
}

// RecordGroupDetected records a group produced by an analysis
func RecordGroupDetected(risk, pattern string) {
	GroupsDetected.WithLabelValues(risk, pattern).Inc()
}

// RecordBatchAnalysis records a batch analysis
func RecordBatchAnalysis(duration time.Duration, analyzed, failed int) {
	BatchDuration.Observe(duration.Seconds())
	BatchWallets.WithLabelValues("analyzed").Add(float64(analyzed))
	BatchWallets.WithLabelValues("failed").Add(float64(failed))
}

// RecordCacheEviction records pair cache entries removed for a reason
func RecordCacheEviction(reason string, n int) {
	if n <= 0 {
		return
	}
	CacheEvictions.WithLabelValues(reason).Add(float64(n))
}

// RecordDetectorEvent records an observed detector event
func RecordDetectorEvent(eventType string) {
	DetectorEvents.WithLabelValues(eventType).Inc()
}

// SetDetectorState updates the size gauges of the named detector
func SetDetectorState(detector string, wallets, trades, cacheEntries, groups int) {
	TrackedWallets.WithLabelValues(detector).Set(float64(wallets))
	StoredTrades.WithLabelValues(detector).Set(float64(trades))
	CacheEntries.WithLabelValues(detector).Set(float64(cacheEntries))
	IndexedGroups.WithLabelValues(detector).Set(float64(groups))
}

// RecordAlert records alert metrics
func RecordAlert(severity, sendStatus, alertType string, suppressed bool) {
	if suppressed {
		AlertsSuppressed.Inc()
		return
	}

	AlertsTriggered.WithLabelValues(severity).Inc()
	AlertsSent.WithLabelValues(sendStatus, alertType).Inc()
}

// RecordAPIRequest records API request metrics
func RecordAPIRequest(api, endpoint string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	APIRequests.WithLabelValues(api, endpoint, status).Inc()
	APIRequestDuration.WithLabelValues(api, endpoint).Observe(duration.Seconds())
}

// RecordDatabaseQuery records database query metrics
func RecordDatabaseQuery(operation string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	DatabaseQueries.WithLabelValues(operation, status).Inc()
	DatabaseQueryDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordOutcomeResolution records an outcome resolution run
func RecordOutcomeResolution(duration time.Duration, marketsResolved, tradesResolved int) {
	MarketsResolved.Add(float64(marketsResolved))
	TradesResolved.Add(float64(tradesResolved))
	ResolutionDuration.Observe(duration.Seconds())
}

// RecordHealthCheck records health check status
func RecordHealthCheck(healthy bool) {
	status := "healthy"
	if !healthy {
		status = "unhealthy"
	}
	HealthChecks.WithLabelValues(status).Inc()
}
