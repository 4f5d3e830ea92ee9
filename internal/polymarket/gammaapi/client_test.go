package gammaapi

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/liamashdown/coordwatch/internal/config"
)

func newTestClient(t *testing.T, status int, body string) *Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/markets" || r.URL.Query().Get("condition_ids") != "0xc1" {
			t.Errorf("request = %s", r.URL)
		}
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return NewClient(&config.Config{GammaAPIBaseURL: srv.URL, GammaAPIMarketsRPS: 100, RateLimitBurst: 10})
}

func TestGetMarketByConditionID(t *testing.T) {
	tests := []struct {
		name         string
		status       int
		body         string
		wantQuestion string
		wantNotFound bool
		wantErr      bool
	}{
		{
			name:         "array response",
			status:       http.StatusOK,
			body:         `[{"conditionId":"0xc1","question":"Will it rain?","closed":true}]`,
			wantQuestion: "Will it rain?",
		},
		{
			name:         "single object response",
			status:       http.StatusOK,
			body:         `{"conditionId":"0xc1","question":"Single?"}`,
			wantQuestion: "Single?",
		},
		{
			name:         "empty array",
			status:       http.StatusOK,
			body:         `[]`,
			wantErr:      true,
			wantNotFound: true,
		},
		{
			name:    "server error",
			status:  http.StatusInternalServerError,
			body:    "boom",
			wantErr: true,
		},
		{
			name:    "garbage",
			status:  http.StatusOK,
			body:    "not json",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, tt.status, tt.body)
			m, err := c.GetMarketByConditionID(context.Background(), "0xc1")
			if (err != nil) != tt.wantErr {
				t.Fatalf("error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantNotFound && !errors.Is(err, ErrMarketNotFound) {
				t.Errorf("expected ErrMarketNotFound, got %v", err)
			}
			if !tt.wantErr && m.Question != tt.wantQuestion {
				t.Errorf("question = %q, want %q", m.Question, tt.wantQuestion)
			}
		})
	}
}

func TestMarketWinner(t *testing.T) {
	tests := []struct {
		name       string
		outcomes   string
		prices     string
		wantWinner string
		wantOK     bool
		wantErr    bool
	}{
		{name: "resolved no", outcomes: `["Yes","No"]`, prices: `["0.01","0.99"]`, wantWinner: "No", wantOK: true},
		{name: "resolved at floor", outcomes: `["Yes","No"]`, prices: `["0.95","0.05"]`, wantWinner: "Yes", wantOK: true},
		{name: "still trading", outcomes: `["Yes","No"]`, prices: `["0.60","0.40"]`},
		{name: "missing data"},
		{name: "length mismatch", outcomes: `["Yes","No"]`, prices: `["1"]`, wantErr: true},
		{name: "bad json", outcomes: `Yes,No`, prices: `["1","0"]`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &Market{Outcomes: tt.outcomes, OutcomePrices: tt.prices}
			winner, ok, err := m.Winner()
			if (err != nil) != tt.wantErr {
				t.Fatalf("error = %v, wantErr %v", err, tt.wantErr)
			}
			if winner != tt.wantWinner || ok != tt.wantOK {
				t.Errorf("Winner() = %q, %v; want %q, %v", winner, ok, tt.wantWinner, tt.wantOK)
			}
		})
	}
}
