package coordination

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// DefaultName labels the size gauges of the process-wide detector
const DefaultName = "default"

var (
	defaultMu       sync.Mutex
	defaultDetector *Detector
)

// InitDefault replaces the process-wide detector with one built from cfg
func InitDefault(cfg Config, log *logrus.Logger) (*Detector, error) {
	d, err := NewDetector(cfg, log, WithName(DefaultName))
	if err != nil {
		return nil, err
	}

	defaultMu.Lock()
	defaultDetector = d
	defaultMu.Unlock()
	return d, nil
}

// Default returns the process-wide detector, creating it with DefaultConfig on first use
func Default() *Detector {
	defaultMu.Lock()
	defer defaultMu.Unlock()

	if defaultDetector == nil {
		// DefaultConfig always validates
		defaultDetector, _ = NewDetector(DefaultConfig(), nil, WithName(DefaultName))
	}
	return defaultDetector
}

// ResetDefault discards the process-wide detector so the next Default call starts fresh
func ResetDefault() {
	defaultMu.Lock()
	defaultDetector = nil
	defaultMu.Unlock()
}
