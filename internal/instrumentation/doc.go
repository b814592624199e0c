// Package instrumentation provides OpenTelemetry metrics for the gateway,
// exported in Prometheus format.
//
// The Provider owns the meter provider and a Metrics recorder covering the
// credential lifecycle (authorizations, refreshes, revocations), streaming
// sessions and tool invocations. A disabled Provider hands out a no-op
// recorder so call sites never have to branch on configuration.
package instrumentation
