// Package metrics exposes mockfleet activity as Prometheus metrics.
//
// Collectors are registered on an explicitly passed *prometheus.Registry,
// never on the global default registry, so tests and embedders can run
// several independent sets side by side:
//
//	reg := metrics.NewRegistry()
//	m := metrics.New(reg)
//	m.ObserveRequest("users", "GET", 200, 12*time.Millisecond)
//	http.Handle("/metrics", m.Handler())
//
// Exported series:
//
//   - mockfleet_requests_total{service,method,status}
//   - mockfleet_request_duration_seconds{service}
//   - mockfleet_services_running
//   - mockfleet_reconciles_total{result}
package metrics
