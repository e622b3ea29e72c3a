// Package scan drives the import pipeline. Each poll cycle walks every
// account directory, extracts archives that passed the stability gate,
// filters stable media, asks the store which files it already holds, uploads
// the rest, and removes imported files when deletion is enabled. The
// filesystem is the only state: a file that fails any step simply stays in
// place and is reconsidered next cycle.
package scan
