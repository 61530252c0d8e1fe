// Package observe records assistant activity as OpenTelemetry metrics and
// exports them for Prometheus scraping.
//
// Tests should build [Metrics] with [NewMetrics] over a meter provider backed
// by a manual reader rather than the global provider.
package observe

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/rbright/jarvis"

// Metrics holds the instruments. It satisfies the Observer interfaces of the
// capture, speech, dispatch, reminder, and mode packages. A nil *Metrics
// records nothing.
type Metrics struct {
	// Captures counts listen attempts. Attributes: backend, outcome.
	Captures metric.Int64Counter

	// SpeechAttempts counts speech tier attempts. Attributes: tier, status.
	SpeechAttempts metric.Int64Counter

	// Commands counts dispatched commands. Attribute: outcome.
	Commands metric.Int64Counter

	// Reminders counts announced reminders.
	Reminders metric.Int64Counter

	// ModeSwitches counts input mode changes. Attribute: to.
	ModeSwitches metric.Int64Counter
}

func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.Captures, err = m.Int64Counter("jarvis.captures",
		metric.WithDescription("Listen attempts by capture backend and outcome."),
		metric.WithUnit("{capture}"),
	); err != nil {
		return nil, err
	}
	if met.SpeechAttempts, err = m.Int64Counter("jarvis.speech.attempts",
		metric.WithDescription("Speech output attempts by tier and status."),
		metric.WithUnit("{attempt}"),
	); err != nil {
		return nil, err
	}
	if met.Commands, err = m.Int64Counter("jarvis.commands",
		metric.WithDescription("Commands handled by the dispatcher."),
		metric.WithUnit("{command}"),
	); err != nil {
		return nil, err
	}
	if met.Reminders, err = m.Int64Counter("jarvis.reminders.announced",
		metric.WithDescription("Reminders announced."),
		metric.WithUnit("{reminder}"),
	); err != nil {
		return nil, err
	}
	if met.ModeSwitches, err = m.Int64Counter("jarvis.mode.switches",
		metric.WithDescription("Input mode switches."),
		metric.WithUnit("{switch}"),
	); err != nil {
		return nil, err
	}
	return met, nil
}

func (m *Metrics) RecordCapture(ctx context.Context, backend, outcome string) {
	if m == nil {
		return
	}
	m.Captures.Add(ctx, 1, metric.WithAttributes(
		attribute.String("backend", backend),
		attribute.String("outcome", outcome),
	))
}

func (m *Metrics) RecordSpeech(ctx context.Context, tier, status string) {
	if m == nil {
		return
	}
	m.SpeechAttempts.Add(ctx, 1, metric.WithAttributes(
		attribute.String("tier", tier),
		attribute.String("status", status),
	))
}

func (m *Metrics) RecordCommand(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.Commands.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

func (m *Metrics) RecordReminder(ctx context.Context) {
	if m == nil {
		return
	}
	m.Reminders.Add(ctx, 1)
}

func (m *Metrics) RecordModeSwitch(ctx context.Context, to string) {
	if m == nil {
		return
	}
	m.ModeSwitches.Add(ctx, 1, metric.WithAttributes(attribute.String("to", to)))
}
