// Package api hosts the operator HTTP server that runs beside a crawl.
// Routes:
//   - GET /healthz for liveness.
//   - GET /readyz reporting the crawl lifecycle phase.
//   - GET /metrics for Prometheus scraping.
package api
