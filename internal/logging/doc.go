// Package logging provides structured logging utilities for calgate.
//
// The package centralizes logging patterns to ensure consistent, structured
// logging throughout the codebase using the standard library's slog package.
// Loggers are constructed once in cmd and passed down into each component;
// nothing in this repository logs through an ambient singleton.
//
// Security considerations:
//   - Tokens are never logged directly; use SanitizeToken.
//   - Attribute keys are shared constants to keep log queries stable.
package logging
