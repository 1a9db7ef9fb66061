// Package logging configures structured JSON logging for searchgate.
//
// Logs go to stderr by default. When a log file is configured (or --debug is
// set on the CLI), records are also written to a size-rotated file, by
// default under ~/.searchgate/logs/.
package logging
