// Package api hosts the HTTP server, middleware, and REST handlers for the
// curator. Notable routes:
//   - GET /healthz / readyz for Kubernetes liveness and readiness checks.
//   - GET /metrics for Prometheus scraping.
//   - /v1/sources for registering, listing and deleting crawl sources.
//   - POST /v1/crawls to lease a source and queue its crawl.
//   - GET /v1/insights and /v1/topics for the dashboard.
//   - GET /v1/events, a Server-Sent Events stream of change notifications.
package api
