// Package bundle turns compressed export archives into flat directories of
// media files. The extractor validates and expands an archive into a private
// working directory; the normalizer recognizes the nested Takeout-style
// layout inside it, strips sidecar metadata and junk, and flattens the media
// payload to the working-directory root. Layout detection is a pure function
// over an injected directory listing so it tests without a filesystem.
package bundle
