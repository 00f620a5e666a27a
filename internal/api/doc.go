// Package api hosts the HTTP server, middleware, and REST handlers for operator
// access. Notable routes:
//   - GET /healthz / readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - POST /v1/batches and /v1/batches/{batch_id}/cancel to control batches.
//   - GET /v1/records, /v1/statistics, /v1/audit, and /v1/page-states/{source}
//     for read-only access to the store.
package api
