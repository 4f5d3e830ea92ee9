package config

import (
	"strings"
	"testing"
	"time"

	"github.com/liamashdown/coordwatch/internal/coordination"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.PollSchedule != "@every 30s" || cfg.RetentionSchedule != "@hourly" {
		t.Errorf("schedules = %q/%q", cfg.PollSchedule, cfg.RetentionSchedule)
	}
	if cfg.AlertMinRisk != coordination.RiskHigh {
		t.Errorf("alert min risk = %s, want HIGH", cfg.AlertMinRisk)
	}
	if cfg.TradeRetention != 72*time.Hour {
		t.Errorf("retention = %s", cfg.TradeRetention)
	}

	det := cfg.Detector()
	def := coordination.DefaultConfig()
	if det.SimultaneousWindow != def.SimultaneousWindow || det.CacheTTL != def.CacheTTL {
		t.Errorf("detector window/ttl = %s/%s", det.SimultaneousWindow, det.CacheTTL)
	}
	if det.ScoreWeights != def.ScoreWeights || det.RiskThresholds != def.RiskThresholds {
		t.Error("detector weights and thresholds should default to the stock values")
	}
}

func TestLoadDetectorOverrides(t *testing.T) {
	t.Setenv("COORD_WINDOW_SECS", "30")
	t.Setenv("COORD_MAX_PAIRS_PER_WALLET", "25")
	t.Setenv("COORD_ENABLE_CACHING", "false")
	t.Setenv("COORD_SCORE_WEIGHTS", `{"timing":0.4,"marketOverlap":0.15}`)
	t.Setenv("COORD_RISK_THRESHOLDS", `{"critical":90}`)
	t.Setenv("ALERT_MIN_RISK", "critical")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	det := cfg.Detector()
	if det.SimultaneousWindow != 30*time.Second || det.MaxPairsPerWallet != 25 || det.EnableCaching {
		t.Errorf("detector overrides not applied: %+v", det)
	}
	if det.ScoreWeights.Timing != 0.4 || det.ScoreWeights.MarketOverlap != 0.15 || det.ScoreWeights.WinRate != 0.15 {
		t.Errorf("partial weight override = %+v", det.ScoreWeights)
	}
	if det.RiskThresholds.Critical != 90 || det.RiskThresholds.High != 70 {
		t.Errorf("partial threshold override = %+v", det.RiskThresholds)
	}
	if cfg.AlertMinRisk != coordination.RiskCritical {
		t.Errorf("alert min risk = %s", cfg.AlertMinRisk)
	}
}

func TestLoadRejectsInvalidSettings(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{
			name:    "weights not summing to one",
			env:     map[string]string{"COORD_SCORE_WEIGHTS": `{"timing":0.9}`},
			wantErr: "COORD_",
		},
		{
			name:    "malformed weights json",
			env:     map[string]string{"COORD_SCORE_WEIGHTS": `{timing}`},
			wantErr: "COORD_SCORE_WEIGHTS",
		},
		{
			name:    "descending thresholds",
			env:     map[string]string{"COORD_RISK_THRESHOLDS": `{"low":80}`},
			wantErr: "COORD_",
		},
		{
			name:    "bad schedule",
			env:     map[string]string{"POLL_SCHEDULE": "sometimes"},
			wantErr: "POLL_SCHEDULE",
		},
		{
			name:    "unknown alert risk",
			env:     map[string]string{"ALERT_MIN_RISK": "SEVERE"},
			wantErr: "ALERT_MIN_RISK",
		},
		{
			name:    "unknown alert mode",
			env:     map[string]string{"ALERT_MODE": "log,pager"},
			wantErr: "ALERT_MODE",
		},
		{
			name:    "discord without webhook",
			env:     map[string]string{"ALERT_MODE": "log,discord"},
			wantErr: "DISCORD_WEBHOOK_URL",
		},
		{
			name:    "smtp without recipients",
			env:     map[string]string{"ALERT_MODE": "smtp", "SMTP_HOST": "mail.example.com"},
			wantErr: "SMTP_TO",
		},
		{
			name:    "bearer without token",
			env:     map[string]string{"DATA_API_AUTH_MODE": "bearer"},
			wantErr: "DATA_API_BEARER_TOKEN",
		},
		{
			name:    "malformed extra headers",
			env:     map[string]string{"DATA_API_EXTRA_HEADERS": "[1,2]"},
			wantErr: "DATA_API_EXTRA_HEADERS",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			if err == nil {
				t.Fatal("expected an error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %s", err, tt.wantErr)
			}
		})
	}
}

func TestAlertModes(t *testing.T) {
	cfg := &Config{AlertMode: " log, discord ,,smtp "}
	got := cfg.AlertModes()
	want := []string{"log", "discord", "smtp"}
	if len(got) != len(want) {
		t.Fatalf("AlertModes() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("AlertModes()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}
