// Package telemetry initializes the OpenTelemetry SDK for ClipForge.
// It exports traces and metrics over OTLP/gRPC when enabled, and installs
// noop global providers when disabled so instrumented code paths stay cheap.
package telemetry
