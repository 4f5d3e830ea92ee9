package coordination

import (
	"time"

	"github.com/sirupsen/logrus"
)

// EventType names a detector notification
type EventType string

const (
	EventTradesAdded           EventType = "trades_added"
	EventAnalysisComplete      EventType = "analysis_complete"
	EventBatchAnalysisComplete EventType = "batch_analysis_complete"
	EventHighRiskGroupDetected EventType = "high_risk_group_detected"
	EventCacheCleared          EventType = "cache_cleared"
)

// Event is an optional side-channel notification. Only the fields relevant
// to Type are set.
type Event struct {
	Type      EventType
	Wallets   []string
	Count     int
	Group     *CoordinatedGroup
	Result    *AnalysisResult
	Batch     *BatchResult
	Timestamp time.Time
}

// Listener receives detector events synchronously, after the detector lock is released
type Listener func(Event)

type subscription struct {
	id       int
	listener Listener
}

// Subscribe registers a listener and returns a function that removes it
func (d *Detector) Subscribe(l Listener) func() {
	d.subMu.Lock()
	defer d.subMu.Unlock()

	d.nextSubID++
	id := d.nextSubID
	d.subs = append(d.subs, subscription{id: id, listener: l})

	return func() {
		d.subMu.Lock()
		defer d.subMu.Unlock()
		for i, s := range d.subs {
			if s.id == id {
				d.subs = append(d.subs[:i], d.subs[i+1:]...)
				return
			}
		}
	}
}

// emit delivers events to every listener. It must be called without d.mu held.
func (d *Detector) emit(events []Event) {
	if !d.cfg.EnableEvents || len(events) == 0 {
		return
	}

	d.subMu.Lock()
	subs := append([]subscription(nil), d.subs...)
	d.subMu.Unlock()

	for _, ev := range events {
		for _, s := range subs {
			d.deliver(s.listener, ev)
		}
	}
}

func (d *Detector) deliver(l Listener, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			d.log.WithFields(logrus.Fields{
				"event": ev.Type,
				"panic": r,
			}).Error("Event listener panicked")
		}
	}()
	l(ev)
}
