// Package api serves the archive over HTTP.
//
// Every /v1 route requires an HS256 bearer token whose user_id claim names
// the caller; tokens are issued by the surrounding platform. /healthz and
// /metrics are unauthenticated. Responses are JSON; errors use
// {"error": {"code": ..., "message": ...}}.
package api
