// Package backend serves the blueprint generation core over HTTP.
//
// Routes:
//
//	POST /api/generate               raw generation through the dispatcher
//	POST /api/generate/stream        the same, streamed as server-sent events
//	POST /api/blueprints             generate a complete blueprint
//	POST /api/blueprints/regenerate  rewrite one section
//	POST /api/blueprints/optimize    rework a whole blueprint
//	POST /api/blueprints/validate    score a blueprint without provider calls
//	GET  /api/providers              rate window and circuit state per provider
//	GET  /health, /status, /version  liveness and build information
//	GET  /metrics                    Prometheus metrics
//
// Every route runs behind recovery, request logging, request id and
// optional CORS middleware.
package backend
