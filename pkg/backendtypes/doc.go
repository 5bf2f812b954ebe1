// Package backendtypes defines the request and response bodies of the
// blueprintd HTTP API, together with the server settings the backend
// package needs.
//
// It has no dependency on net/http so clients can import the wire types
// without the server.
package backendtypes
