// Package api hosts the HTTP server, middleware, and REST handlers of the
// console. Notable routes:
//   - GET /healthz and /readyz for probes; readiness needs the manager and a
//     live progress channel.
//   - GET /metrics for Prometheus scraping.
//   - /v1/feeds and /v1/episodes proxy operator actions to the manager through
//     the console service. Episode listings carry the live progress overlay.
//   - GET /v1/progress for the channel snapshot and /v1/actions for the audit
//     log.
package api
