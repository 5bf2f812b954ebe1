// Package middleware provides the HTTP middleware of the blueprintd server:
// panic recovery, request logging, request ids and CORS.
package middleware
