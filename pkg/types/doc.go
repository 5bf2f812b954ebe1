// Package types defines the provider-agnostic request, response, usage and
// error types shared by the provider clients, the dispatcher and the HTTP API.
package types
