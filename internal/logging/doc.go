// Package logging provides file-based structured logging with rotation for sqlrag.
// Setup writes JSON records to a rotating log file (by default
// ~/.sqlrag/logs/sqlragd.log) and, when WriteToStderr is set, to stderr as well.
//
// DefaultConfig logs at info level with stderr enabled; DebugConfig is the
// same at debug level.
package logging
