// Package preflight provides system validation checks run before serving.
//
// The package validates:
//   - Write permissions on the index root (created if missing)
//   - Disk space availability at the index root (minimum 100MB)
//   - File descriptor limits (minimum 1024)
//   - Redis reachability when the write queue is enabled
//
// Use the Checker type to run all validations:
//
//	checker := preflight.New(preflight.WithRedisPing(ping))
//	results := checker.RunAll(ctx, "/var/lib/searchgate/indexes")
//	if checker.HasCriticalFailures(results) {
//	    // Handle failures
//	}
package preflight
