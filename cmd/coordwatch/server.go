package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/liamashdown/coordwatch/internal/coordination"
	"github.com/liamashdown/coordwatch/internal/metrics"
	"github.com/liamashdown/coordwatch/internal/wallet"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

type pinger interface {
	Ping(ctx context.Context) error
}

// newHealthMux serves health, readiness and read-only detector views
func newHealthMux(detector *coordination.Detector, db pinger, log *logrus.Logger) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		metrics.RecordHealthCheck(true)
		writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"}, log)
	})

	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := db.Ping(ctx); err != nil {
			metrics.RecordHealthCheck(false)
			log.WithError(err).Warn("Readiness check failed")
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"}, log)
			return
		}
		metrics.RecordHealthCheck(true)
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"}, log)
	})

	mux.HandleFunc("/summary", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, detector.Summary(), log)
	})

	mux.HandleFunc("/groups", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		var groups []*coordination.CoordinatedGroup
		switch {
		case q.Get("wallet") != "":
			if !wallet.IsValid(q.Get("wallet")) {
				badRequest(w, fmt.Sprintf("invalid wallet address %q", q.Get("wallet")), log)
				return
			}
			groups = detector.GroupsForWallet(q.Get("wallet"))
		case q.Get("risk") != "":
			level, ok := coordination.ParseRiskLevel(strings.ToUpper(q.Get("risk")))
			if !ok {
				badRequest(w, fmt.Sprintf("unknown risk level %q", q.Get("risk")), log)
				return
			}
			groups = detector.GroupsByRisk(level)
		case q.Get("pattern") != "":
			pattern, ok := coordination.ParsePatternType(strings.ToUpper(q.Get("pattern")))
			if !ok {
				badRequest(w, fmt.Sprintf("unknown pattern type %q", q.Get("pattern")), log)
				return
			}
			groups = detector.GroupsByPattern(pattern)
		default:
			groups = detector.Groups()
		}
		writeJSON(w, http.StatusOK, groups, log)
	})

	return mux
}

// newMetricsMux serves the Prometheus endpoint
func newMetricsMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

func badRequest(w http.ResponseWriter, msg string, log *logrus.Logger) {
	writeJSON(w, http.StatusBadRequest, map[string]string{"error": msg}, log)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}, log *logrus.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithError(err).Warn("Failed to write response")
	}
}

// serve runs an HTTP server until ctx is cancelled
func serve(ctx context.Context, name string, port int, handler http.Handler, log *logrus.Logger) {
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      handler,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  15 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).WithField("server", name).Warn("HTTP server shutdown failed")
		}
	}()

	log.WithFields(logrus.Fields{
		"server": name,
		"port":   port,
	}).Info("Starting HTTP server")
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.WithError(err).WithField("server", name).Error("HTTP server failed")
	}
}
