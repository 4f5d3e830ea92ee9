package alerts

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
	"time"
)

// SMTPSender sends alerts via email
type SMTPSender struct {
	host     string
	port     int
	user     string
	password string
	from     string
	to       []string
}

// NewSMTPSender creates a new SMTP sender
func NewSMTPSender(host string, port int, user, password, from string, to []string) *SMTPSender {
	return &SMTPSender{
		host:     host,
		port:     port,
		user:     user,
		password: password,
		from:     from,
		to:       to,
	}
}

// Send sends the alert via email
func (s *SMTPSender) Send(ctx context.Context, payload *AlertPayload) error {
	if len(s.to) == 0 {
		return fmt.Errorf("no recipients configured")
	}

	var auth smtp.Auth
	if s.user != "" {
		auth = smtp.PlainAuth("", s.user, s.password, s.host)
	}
	addr := fmt.Sprintf("%s:%d", s.host, s.port)

	if err := smtp.SendMail(addr, auth, s.from, s.to, s.buildMessage(payload)); err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	return nil
}

func (s *SMTPSender) buildMessage(payload *AlertPayload) []byte {
	subject := fmt.Sprintf("[%s] Coordinated group: %d wallets, %s, score %.0f",
		payload.Severity, len(payload.Members), payload.PatternType, payload.Score)

	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", s.from)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(s.to, ", "))
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(buildEmailBody(payload))
	return []byte(b.String())
}

func buildEmailBody(payload *AlertPayload) string {
	var b strings.Builder
	fmt.Fprintf(&b, "COORDWATCH ALERT - %s\n", payload.Severity)
	b.WriteString("═══════════════════════════════════════\n\n")
	b.WriteString("A coordinated wallet group has been detected:\n\n")

	b.WriteString("GROUP\n")
	b.WriteString("─────────────────────────────────────\n")
	fmt.Fprintf(&b, "ID:             %s\n", payload.GroupID)
	fmt.Fprintf(&b, "Pattern:        %s\n", payload.PatternType)
	fmt.Fprintf(&b, "Risk:           %s\n", payload.RiskLevel)
	fmt.Fprintf(&b, "Confidence:     %s\n", payload.Confidence)
	fmt.Fprintf(&b, "Score:          %.2f\n", payload.Score)
	fmt.Fprintf(&b, "Pairs:          %d\n\n", payload.PairCount)

	b.WriteString("MEMBERS\n")
	b.WriteString("─────────────────────────────────────\n")
	for _, m := range payload.Members {
		marker := ""
		if m == payload.FocalWallet {
			marker = " (analyzed)"
		}
		fmt.Fprintf(&b, "%s%s\n", m, marker)
	}
	b.WriteString("\n")

	if len(payload.Flags) > 0 {
		b.WriteString("FLAGS\n")
		b.WriteString("─────────────────────────────────────\n")
		for _, f := range payload.Flags {
			fmt.Fprintf(&b, "%-26s %d\n", f.Flag, f.Count)
		}
		b.WriteString("\n")
	}

	b.WriteString("═══════════════════════════════════════\n")
	fmt.Fprintf(&b, "Environment: %s\n", payload.Environment)
	fmt.Fprintf(&b, "Detected: %s\n", payload.Timestamp.UTC().Format("2006-01-02 15:04:05 UTC"))
	fmt.Fprintf(&b, "Generated: %s\n", time.Now().UTC().Format("2006-01-02 15:04:05 UTC"))
	b.WriteString("\nNote: This system detects correlated behavior;\n")
	b.WriteString("it does NOT prove collusion.\n")
	return b.String()
}
