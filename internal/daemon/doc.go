// Package daemon enforces single-instance execution around the scan loop
// with a lock file and PID file under the log directory.
package daemon
