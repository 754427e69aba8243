// Package logger builds the docsnap slog.Logger.
//
//   - logger.go: handler construction, level control, rotating file output
//   - context.go: request-scoped loggers with request and trace IDs
//   - redact.go: masking of credentials and passphrases
//
// File output rotates through lumberjack when log.file.path is set.
package logger
