// Package ledger records scan history in SQLite for the status and history
// commands. It is strictly an audit trail: nothing in the pipeline reads it,
// so the filesystem stays the only input to scan decisions.
package ledger
