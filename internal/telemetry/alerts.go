package telemetry

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Severity mirrors the three alert severities raised by the health checker
// and by Position Monitor breaches (grounded on original_source's
// src/monitoring/alerting.py P0/P1/P2 scheme).
type Severity string

const (
	SeverityCritical Severity = "P0"
	SeverityWarning  Severity = "P1"
	SeverityInfo     Severity = "P2"
)

// Alert is a single raised alert.
type Alert struct {
	Severity  Severity
	Source    string
	Message   string
	Timestamp time.Time
}

// AlertSink receives alerts for external delivery (paging, Slack, email —
// out of scope here; only the interface matters).
type AlertSink interface {
	Notify(Alert)
}

// Alerter raises alerts, logs them at a severity-appropriate level, and
// forwards to an optional sink.
type Alerter struct {
	mu   sync.Mutex
	log  zerolog.Logger
	sink AlertSink
	recent []Alert
}

const maxRecentAlerts = 500

// NewAlerter creates an Alerter. sink may be nil.
func NewAlerter(log zerolog.Logger, sink AlertSink) *Alerter {
	return &Alerter{
		log:  log.With().Str("component", "telemetry.alerts").Logger(),
		sink: sink,
	}
}

// Raise records and logs an alert at the given severity.
func (a *Alerter) Raise(sev Severity, source, message string) {
	alert := Alert{Severity: sev, Source: source, Message: message, Timestamp: time.Now()}

	switch sev {
	case SeverityCritical:
		a.log.Error().Str("source", source).Str("severity", string(sev)).Msg(message)
	case SeverityWarning:
		a.log.Warn().Str("source", source).Str("severity", string(sev)).Msg(message)
	default:
		a.log.Info().Str("source", source).Str("severity", string(sev)).Msg(message)
	}

	a.mu.Lock()
	a.recent = append(a.recent, alert)
	if len(a.recent) > maxRecentAlerts {
		a.recent = a.recent[len(a.recent)-maxRecentAlerts:]
	}
	a.mu.Unlock()

	if a.sink != nil {
		a.sink.Notify(alert)
	}
}

// Recent returns a copy of the recently raised alerts.
func (a *Alerter) Recent() []Alert {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Alert, len(a.recent))
	copy(out, a.recent)
	return out
}
