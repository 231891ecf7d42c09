// Package logger provides structured logging for sessiond.
//
// It configures log/slog with:
//
//   - JSON (default) or text output
//   - A process-wide level that can be changed at runtime (SetLevel)
//   - Redaction of sensitive attributes (secrets, tokens, keys)
//   - Context propagation (WithLogger, FromContext)
package logger
