package instrumentation

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds the counters recorded by the grant flow.
type Metrics struct {
	AuthorizationStarted  metric.Int64Counter
	AuthorizationRejected metric.Int64Counter
	CodeIssued            metric.Int64Counter
	GrantDecided          metric.Int64Counter
	CodeExchanged         metric.Int64Counter
	ExchangeRejected      metric.Int64Counter
	CodeReuseDetected     metric.Int64Counter
	PKCEValidationFailed  metric.Int64Counter
	RateLimitExceeded     metric.Int64Counter
	ExchangesPurged       metric.Int64Counter
}

func newMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
		unit string
	}{
		{&m.AuthorizationStarted, "codeflow.authorization.started", "Authorization requests received", "{request}"},
		{&m.AuthorizationRejected, "codeflow.authorization.rejected", "Authorization requests rejected, by kind", "{request}"},
		{&m.CodeIssued, "codeflow.code.issued", "Authorization codes issued", "{code}"},
		{&m.GrantDecided, "codeflow.grant.decided", "Consent decisions, by decision", "{decision}"},
		{&m.CodeExchanged, "codeflow.code.exchanged", "Authorization codes redeemed", "{code}"},
		{&m.ExchangeRejected, "codeflow.exchange.rejected", "Token requests rejected, by kind", "{request}"},
		{&m.CodeReuseDetected, "codeflow.code.reuse_detected", "Redemptions lost to a concurrent redemption", "{code}"},
		{&m.PKCEValidationFailed, "codeflow.pkce.validation_failed", "Code verifiers that did not match", "{request}"},
		{&m.RateLimitExceeded, "codeflow.rate_limit.exceeded", "Requests refused by the rate limiter", "{request}"},
		{&m.ExchangesPurged, "codeflow.exchange.purged", "Expired exchange records deleted", "{record}"},
	}

	for _, c := range counters {
		counter, err := meter.Int64Counter(
			c.name,
			metric.WithDescription(c.desc),
			metric.WithUnit(c.unit),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create %s counter: %w", c.name, err)
		}
		*c.dst = counter
	}
	return m, nil
}

func (m *Metrics) RecordAuthorizationStarted(ctx context.Context, clientID string) {
	m.AuthorizationStarted.Add(ctx, 1, metric.WithAttributes(attribute.String("client_id", clientID)))
}

func (m *Metrics) RecordAuthorizationRejected(ctx context.Context, kind string) {
	m.AuthorizationRejected.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

func (m *Metrics) RecordCodeIssued(ctx context.Context, clientID string) {
	m.CodeIssued.Add(ctx, 1, metric.WithAttributes(attribute.String("client_id", clientID)))
}

func (m *Metrics) RecordGrantDecided(ctx context.Context, clientID string, decision string) {
	m.GrantDecided.Add(ctx, 1, metric.WithAttributes(
		attribute.String("client_id", clientID),
		attribute.String("decision", decision),
	))
}

func (m *Metrics) RecordCodeExchanged(ctx context.Context, clientID string) {
	m.CodeExchanged.Add(ctx, 1, metric.WithAttributes(attribute.String("client_id", clientID)))
}

func (m *Metrics) RecordExchangeRejected(ctx context.Context, kind string) {
	m.ExchangeRejected.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

func (m *Metrics) RecordCodeReuseDetected(ctx context.Context, clientID string) {
	m.CodeReuseDetected.Add(ctx, 1, metric.WithAttributes(attribute.String("client_id", clientID)))
}

func (m *Metrics) RecordPKCEValidationFailed(ctx context.Context, clientID string, method string) {
	m.PKCEValidationFailed.Add(ctx, 1, metric.WithAttributes(
		attribute.String("client_id", clientID),
		attribute.String("method", method),
	))
}

func (m *Metrics) RecordRateLimitExceeded(ctx context.Context, route string) {
	m.RateLimitExceeded.Add(ctx, 1, metric.WithAttributes(attribute.String("route", route)))
}

func (m *Metrics) RecordExchangesPurged(ctx context.Context, n int64) {
	if n > 0 {
		m.ExchangesPurged.Add(ctx, n)
	}
}
