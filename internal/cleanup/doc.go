// Package cleanup deletes successfully imported files and prunes the empty
// directory chain they leave behind, bounded by the account root.
package cleanup
