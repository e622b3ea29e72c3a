// Package media holds the fixed extension allow-lists and file
// classification shared by the scanner and the bundle normalizer.
package media
