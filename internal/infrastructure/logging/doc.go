// Package logging provides structured logging for the T-Deck-Pro hub server.
//
// It is a thin wrapper over log/slog that applies the configured level,
// format, and output destination, and stamps every record with the service
// name and build version. Components receive a *Logger and can derive
// scoped loggers with With("component", ...).
package logging
