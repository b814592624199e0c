// Package calendar_tools registers the gateway's MCP tools for Google
// Calendar. Every handler obtains its client from the factory per call, so
// a background token refresh is picked up without restarting the server.
package calendar_tools
