// SPDX-License-Identifier: MIT
/*
Package transport publishes loop diagnostics to external consumers. All
transports carry one payload type, Event, and are fed from the loop
thread through a Notifier; sends must never block the loop.
*/
package transport

import (
	"sndsync/internal/engine"
	applog "sndsync/internal/log"
)

// Transport publishes loop events. Implementations must be safe to call
// from the loop thread and must not block it.
type Transport interface {
	Send(e Event) error
	Close() error
}

// Event is the wire payload for one loop diagnostic: a completed period,
// a late wakeup, or a gap reset. RunID ties events from one invocation
// together across transports.
type Event struct {
	RunID      string `json:"run_id"`
	Kind       string `json:"kind"` // "period", "late_wakeup", "gap_reset"
	Channel    string `json:"channel,omitempty"`
	SyncFrames int64  `json:"sync_frames,omitempty"`
	Balance    int64  `json:"balance,omitempty"`
	Correction int64  `json:"correction,omitempty"`
	Frames     int64  `json:"frames,omitempty"`
}

// Notifier adapts a Transport to the engine's Observer interface.
type Notifier struct {
	runID string
	out   Transport
}

// NewNotifier wraps out, stamping every event with runID.
func NewNotifier(runID string, out Transport) *Notifier {
	return &Notifier{runID: runID, out: out}
}

func (n *Notifier) PeriodFinished(s engine.PeriodStats) {
	n.send(Event{
		RunID:      n.runID,
		Kind:       "period",
		Channel:    s.Channel,
		SyncFrames: s.SyncFrames,
		Balance:    s.Balance,
		Correction: s.Correction,
	})
}

func (n *Notifier) LateWakeup(frames int64) {
	n.send(Event{RunID: n.runID, Kind: "late_wakeup", Frames: frames})
}

func (n *Notifier) GapReset(gap int64) {
	n.send(Event{RunID: n.runID, Kind: "gap_reset", Frames: gap})
}

func (n *Notifier) send(e Event) {
	if err := n.out.Send(e); err != nil {
		applog.Debugf("Transport send failed: %v", err)
	}
}

var _ engine.Observer = (*Notifier)(nil)

// LoggingTransport publishes events to the log at debug level, for runs
// without a network consumer.
type LoggingTransport struct{}

func (LoggingTransport) Send(e Event) error {
	switch e.Kind {
	case "period":
		applog.Debugf("event %s: %s period at %d, balance %d, correction %d",
			e.RunID, e.Channel, e.SyncFrames, e.Balance, e.Correction)
	default:
		applog.Debugf("event %s: %s of %d frames", e.RunID, e.Kind, e.Frames)
	}
	return nil
}

func (LoggingTransport) Close() error { return nil }

var _ Transport = LoggingTransport{}
