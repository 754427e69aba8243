// Package tracer configures OpenTelemetry tracing for docsnap.
//
// Tracing is opt-in. Without an OTLP endpoint Setup installs nothing and
// spans started through StartSpan are non-recording.
package tracer
