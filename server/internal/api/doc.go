// Package api implements the read-only HTTP API of scalarship-server.
//
// New(store) returns an http.Handler that serves:
//
//	GET /api/v1/health            status and live experiment count
//	GET /api/v1/experiments       experiment summaries sorted by ID
//	GET /api/v1/experiments/{id}  every series with its points; 404 if unknown
//
// Every endpoint responds with Content-Type: application/json and returns
// 405 for non-GET methods. No external HTTP framework is used.
package api
