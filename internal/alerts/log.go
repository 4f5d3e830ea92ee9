package alerts

import (
	"context"

	"github.com/sirupsen/logrus"
)

// LogSender sends alerts to the logger
type LogSender struct {
	log *logrus.Logger
}

// NewLogSender creates a new log sender
func NewLogSender(log *logrus.Logger) *LogSender {
	return &LogSender{log: log}
}

// Send logs the alert
func (s *LogSender) Send(ctx context.Context, payload *AlertPayload) error {
	s.log.WithFields(logrus.Fields{
		"severity":     payload.Severity,
		"group_id":     payload.GroupID,
		"pattern":      payload.PatternType,
		"risk":         payload.RiskLevel,
		"confidence":   payload.Confidence,
		"score":        payload.Score,
		"members":      payload.MembersShort,
		"focal_wallet": payload.FocalWallet,
		"pairs":        payload.PairCount,
	}).Info("Alert generated")
	return nil
}
