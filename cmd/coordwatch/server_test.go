package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/liamashdown/coordwatch/internal/alerts"
	"github.com/liamashdown/coordwatch/internal/config"
	"github.com/liamashdown/coordwatch/internal/coordination"
	"github.com/sirupsen/logrus"
)

type stubPinger struct {
	err error
}

func (p stubPinger) Ping(ctx context.Context) error {
	return p.err
}

func newTestMux(t *testing.T, pingErr error) *http.ServeMux {
	t.Helper()
	log := logrus.New()
	log.SetOutput(io.Discard)
	d, err := coordination.NewDetector(coordination.DefaultConfig(), log)
	if err != nil {
		t.Fatalf("NewDetector: %v", err)
	}
	d.AddTrades([]coordination.Trade{{
		ID:            "t1",
		WalletAddress: "0x0000000000000000000000000000000000000001",
		MarketID:      "m1",
		Side:          coordination.SideBuy,
		SizeUSD:       100,
		Timestamp:     1_700_000_000_000,
	}})
	return newHealthMux(d, stubPinger{err: pingErr}, log)
}

func get(t *testing.T, mux *http.ServeMux, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealthEndpoints(t *testing.T) {
	tests := []struct {
		name       string
		path       string
		pingErr    error
		wantStatus int
	}{
		{name: "health", path: "/health", wantStatus: http.StatusOK},
		{name: "ready", path: "/ready", wantStatus: http.StatusOK},
		{name: "not ready", path: "/ready", pingErr: errors.New("db down"), wantStatus: http.StatusServiceUnavailable},
		{name: "groups", path: "/groups", wantStatus: http.StatusOK},
		{name: "groups by risk", path: "/groups?risk=high", wantStatus: http.StatusOK},
		{name: "bad risk", path: "/groups?risk=extreme", wantStatus: http.StatusBadRequest},
		{name: "groups by pattern", path: "/groups?pattern=mirror_trading", wantStatus: http.StatusOK},
		{name: "bad pattern", path: "/groups?pattern=sideways", wantStatus: http.StatusBadRequest},
		{name: "groups by wallet", path: "/groups?wallet=0x0000000000000000000000000000000000000001", wantStatus: http.StatusOK},
		{name: "bad wallet", path: "/groups?wallet=0x123", wantStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := get(t, newTestMux(t, tt.pingErr), tt.path)
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("content type = %q", ct)
			}
		})
	}
}

func TestSummaryEndpoint(t *testing.T) {
	rec := get(t, newTestMux(t, nil), "/summary")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var summary coordination.Summary
	if err := json.NewDecoder(rec.Body).Decode(&summary); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if summary.TotalWallets != 1 || summary.TotalTrades != 1 {
		t.Errorf("summary = %+v", summary)
	}
}

func TestCreateAlertSender(t *testing.T) {
	log := logrus.New()
	log.SetOutput(io.Discard)

	tests := []struct {
		name  string
		mode  string
		check func(*testing.T, alerts.Sender)
	}{
		{
			name: "single log sender",
			mode: "log",
			check: func(t *testing.T, s alerts.Sender) {
				if _, ok := s.(*alerts.LogSender); !ok {
					t.Errorf("sender = %T", s)
				}
			},
		},
		{
			name: "multiple senders",
			mode: "log, discord",
			check: func(t *testing.T, s alerts.Sender) {
				m, ok := s.(*alerts.MultiSender)
				if !ok || m.Len() != 2 {
					t.Errorf("sender = %T", s)
				}
			},
		},
		{
			name: "unknown falls back to log",
			mode: "pager",
			check: func(t *testing.T, s alerts.Sender) {
				if _, ok := s.(*alerts.LogSender); !ok {
					t.Errorf("sender = %T", s)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &config.Config{AlertMode: tt.mode, DiscordWebURL: "http://localhost/hook"}
			tt.check(t, createAlertSender(cfg, log))
		})
	}
}
