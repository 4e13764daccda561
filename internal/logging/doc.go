// Package logging provides structured, file-based logging with rotation for
// the search engine core. Logs are JSON lines via log/slog, written to a
// rotating file under the configured index root and optionally teed to
// stderr.
package logging
