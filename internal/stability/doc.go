// Package stability implements the gate that keeps partially-written files
// out of the pipeline. It tolerates external sync clients still copying into
// the watch root by requiring a minimum age and an unchanged size across a
// short re-check window before any file is extracted, hashed, or uploaded.
package stability
