// Package cmd implements the calgate command-line interface.
//
// The CLI is built with cobra and exposes the following commands:
//
//   - serve: start the MCP server over stdio or SSE
//   - auth: run the console OAuth authorization flow (or revoke)
//   - version: print the build version
//
// Running calgate without a subcommand is equivalent to "calgate serve".
package cmd
