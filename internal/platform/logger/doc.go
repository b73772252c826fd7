// Package logger configures the process-wide slog JSON logger from
// ServerConfig and carries request and job scoped loggers through
// contexts. Test helpers capture output from concurrent workers.
package logger
