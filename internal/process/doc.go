// Package process supervises long-running child processes.
//
// Keygrid uses it to host out-of-process plugins. A managed process can
// optionally speak a line protocol over its standard streams: each line
// the child writes to stdout is handed to Config.OnLine, and WriteLine
// sends one line to the child's stdin. Stderr is always logged.
//
// Features:
//   - Start/stop with graceful shutdown (SIGTERM to the process group, then SIGKILL)
//   - Automatic restart with exponential backoff, reset after a stable run
//   - Optional health check watchdog
//   - Context-based cancellation
//
// Example usage:
//
//	mgr := process.NewManager(process.Config{
//	    Name:             "weather",
//	    Binary:           "/var/lib/keygrid/plugins/weather/weather",
//	    RestartOnFailure: true,
//	    OnLine:           handleLine,
//	})
//
//	if err := mgr.Start(ctx); err != nil {
//	    return err
//	}
//	defer mgr.Stop()
package process
