// Package calendar wraps the Google Calendar API for the gateway's tools.
//
// The Client is a thin forwarding layer over google.golang.org/api; it adds
// no scheduling logic of its own. The Factory owns the current Client and
// rebuilds it whenever credentials change, so a tool call always runs
// against the freshest token set.
package calendar
