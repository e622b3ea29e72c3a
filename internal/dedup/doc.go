// Package dedup answers "does the store already hold this file" before any
// bytes are uploaded. It fingerprints candidates with chunked SHA-1 and
// queries the remote bulk-check endpoint in bounded batches; every failure
// degrades to an unknown verdict so the upload path's own duplicate
// detection remains the backstop.
package dedup
