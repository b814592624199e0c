// Package server hosts the gateway's HTTP and MCP surfaces.
//
// The Gateway orchestrates the credential lifecycle manager, the calendar
// client factory and the session registry. Around it the package provides
// the SSE transport (GET /sse, POST /message), the OAuth authorization
// endpoints (/oauth/authorize, /oauth/callback, /oauth/revoke), health
// probes and a dedicated Prometheus metrics listener.
package server
