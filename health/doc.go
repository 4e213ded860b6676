// Package health turns the state of provider circuit breakers into health
// checks and serves them as HTTP probes.
//
// A closed circuit is healthy, a half-open circuit is degraded and an open
// circuit is unhealthy. Degraded components are still ready to serve.
//
// # Checking breakers
//
//	reg := resilience.NewRegistry(resilience.DefaultCircuitBreakerConfig())
//	p, _ := resilient.NewBuilder().Registry(reg).Build(inner)
//
//	agg := health.NewAggregator()
//	agg.Register("providers", health.NewRegistryChecker("providers", reg))
//
//	results := agg.CheckAll(ctx)
//	overall := agg.OverallStatus(results)
//
// RegisterBreakers adds one BreakerChecker per breaker instead, so each
// provider shows up as its own check.
//
// # HTTP endpoints
//
//	mux := http.NewServeMux()
//	health.RegisterHandlers(mux, agg, health.WithMetrics(promRegistry))
//
// This serves /healthz (liveness), /readyz (readiness), /health (JSON
// detail with breaker metrics) and, with WithMetrics, /metrics.
package health
