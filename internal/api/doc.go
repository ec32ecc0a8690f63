// Package api hosts the HTTP server and REST handlers for operators and the
// interactive award query. Notable routes:
//   - GET /healthz and /readyz for probes.
//   - GET /metrics for Prometheus scraping.
//   - POST /v1/cycles to request a synchronization cycle, GET /v1/cycles and
//     /v1/cycles/{cycle_id} for run history.
//   - GET /v1/awards and /v1/awards/export for the stored listing.
//   - GET /v1/companies/{company_id} for registry contact details.
package api
