// Package handlers provides the HTTP handlers of the blueprintd API: raw
// generation through the dispatcher (plain and SSE), blueprint generation
// and refinement through the orchestrator, provider state, and health.
package handlers
