package alerts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// DiscordSender sends alerts to Discord via webhook
type DiscordSender struct {
	webhookURL string
	httpClient *http.Client
}

// NewDiscordSender creates a new Discord sender
func NewDiscordSender(webhookURL string) *DiscordSender {
	return &DiscordSender{
		webhookURL: webhookURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// Send sends the alert to Discord
func (s *DiscordSender) Send(ctx context.Context, payload *AlertPayload) error {
	webhookPayload := map[string]interface{}{
		"embeds": []interface{}{buildEmbed(payload)},
	}

	body, err := json.Marshal(webhookPayload)
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}

func buildEmbed(payload *AlertPayload) map[string]interface{} {
	var title string
	var color int
	switch payload.Severity {
	case SeverityAlert:
		title = "🚨 Coordinated wallet group (ALERT)"
		color = 0xFF0000 // Red
	case SeverityWarn:
		title = "⚠️ Coordinated wallet group (WARN)"
		color = 0xFFA500 // Orange
	default:
		title = "ℹ️ Coordinated wallet group"
		color = 0x0099FF // Blue
	}

	description := fmt.Sprintf("**%d wallets** trading as **%s** with score **%.0f/100**",
		len(payload.Members),
		payload.PatternType,
		payload.Score,
	)

	fields := []map[string]interface{}{
		{
			"name":   "Risk",
			"value":  payload.RiskLevel,
			"inline": true,
		},
		{
			"name":   "Confidence",
			"value":  payload.Confidence,
			"inline": true,
		},
		{
			"name":   "Pairs",
			"value":  fmt.Sprintf("%d", payload.PairCount),
			"inline": true,
		},
		{
			"name":   "Members",
			"value":  truncate(formatMembers(payload.MembersShort), 1000),
			"inline": false,
		},
	}

	if len(payload.Flags) > 0 {
		fields = append(fields, map[string]interface{}{
			"name":   "📊 Flags",
			"value":  truncate(formatFlags(payload.Flags, "\n"), 1000),
			"inline": false,
		})
	}

	footer := map[string]interface{}{
		"text": fmt.Sprintf("Coordwatch • %s • group %s", payload.Environment, payload.GroupID),
	}

	return map[string]interface{}{
		"title":       title,
		"description": description,
		"color":       color,
		"fields":      fields,
		"footer":      footer,
		"timestamp":   payload.Timestamp.UTC().Format(time.RFC3339),
	}
}

func formatMembers(members []string) string {
	quoted := make([]string, len(members))
	for i, m := range members {
		quoted[i] = fmt.Sprintf("`%s`", m)
	}
	return strings.Join(quoted, " ")
}

func formatFlags(flags []FlagCount, sep string) string {
	parts := make([]string, len(flags))
	for i, f := range flags {
		parts[i] = fmt.Sprintf("%s × %d", f.Flag, f.Count)
	}
	return strings.Join(parts, sep)
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
