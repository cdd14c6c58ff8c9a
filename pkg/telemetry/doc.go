// Package telemetry provides the observability stack for sitesync:
// structured logging (zerolog), Prometheus metrics and OpenTelemetry
// tracing, all driven from a single Config.
//
// Logging is always on; metrics and tracing are opt-in. The metrics
// instance is nil-safe so call sites never need an enabled check.
package telemetry
