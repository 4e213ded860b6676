// Package observe provides observability for calls to text-generation
// providers.
//
// It is a pure instrumentation library: spans and metrics go through
// OpenTelemetry, logs are JSON lines, and breaker health is published as
// observable gauges. Middleware.WrapProvider instruments any llm.Provider
// without changing its behavior; RegisterBreakerMetrics exports the state of
// every breaker in a resilience.Registry.
package observe
