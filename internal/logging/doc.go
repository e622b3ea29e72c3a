// Package logging builds the slog loggers used across snapsync.
//
// Console output renders compact key=value lines with the component attribute
// lifted into the message prefix; JSON output targets log aggregation. All
// components receive a child logger tagged with a component attribute so log
// lines stay attributable once cycles interleave account work.
package logging
