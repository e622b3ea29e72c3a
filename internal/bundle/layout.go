package bundle

import (
	"os"
	"path/filepath"
	"strings"

	"snapsync/internal/media"
)

// containerNames are the directory names a photo export wraps its payload in.
// Detection descends through at most two nested levels of these.
var containerNames = map[string]struct{}{
	"Takeout":       {},
	"Google Photos": {},
}

// junkNames are non-media documents an export ships that carry nothing worth
// uploading.
var junkNames = map[string]struct{}{
	"archive_browser.html":              {},
	"metadata.json":                     {},
	"print-subscriptions.json":          {},
	"shared_album_comments.json":        {},
	"user-generated-memory-titles.json": {},
}

// Entry is one name in a directory listing.
type Entry struct {
	Name string
	Dir  bool
}

// Lister returns the listing of the directory at rel, where "" is the
// working-directory root. Injected so layout detection stays a pure function
// over directory contents.
type Lister func(rel string) ([]Entry, error)

// IsSidecar reports whether name looks like per-file export metadata: a
// .json document whose stem is itself a full media file name, extension
// included (e.g. "IMG_1.jpg.json").
func IsSidecar(name string) bool {
	base := filepath.Base(name)
	if !strings.HasSuffix(strings.ToLower(base), ".json") {
		return false
	}
	stem := base[:len(base)-len(".json")]
	return media.IsMedia(stem)
}

// IsJunk reports whether name is on the fixed known-junk list.
func IsJunk(name string) bool {
	_, ok := junkNames[strings.ToLower(filepath.Base(name))]
	return ok
}

// DetectLayout reports whether the listing matches a known nested export
// layout. Signals, in order: a top-level directory with a recognized
// container name; otherwise co-occurrence of a sidecar metadata document
// with its matching media file.
func DetectLayout(list Lister) (bool, error) {
	entries, err := list("")
	if err != nil {
		return false, err
	}

	names := make(map[string]struct{}, len(entries))
	for _, entry := range entries {
		if entry.Dir {
			if _, ok := containerNames[entry.Name]; ok {
				return true, nil
			}
			continue
		}
		names[entry.Name] = struct{}{}
	}

	for name := range names {
		if !IsSidecar(name) {
			continue
		}
		stem := name[:len(name)-len(".json")]
		if _, ok := names[stem]; ok {
			return true, nil
		}
	}
	return false, nil
}

// PayloadDir locates the deepest directory holding the media payload by
// descending through up to two levels of known container names. Returns a
// path relative to the working-directory root ("" when the payload sits at
// the root itself).
func PayloadDir(list Lister) (string, error) {
	rel := ""
	for depth := 0; depth < 2; depth++ {
		entries, err := list(rel)
		if err != nil {
			return rel, err
		}
		next := ""
		for _, entry := range entries {
			if !entry.Dir {
				continue
			}
			if _, ok := containerNames[entry.Name]; ok {
				next = entry.Name
				break
			}
		}
		if next == "" {
			return rel, nil
		}
		rel = filepath.Join(rel, next)
	}
	return rel, nil
}

// DirLister adapts a real directory to the Lister contract.
func DirLister(root string) Lister {
	return func(rel string) ([]Entry, error) {
		entries, err := os.ReadDir(filepath.Join(root, rel))
		if err != nil {
			return nil, err
		}
		out := make([]Entry, 0, len(entries))
		for _, entry := range entries {
			out = append(out, Entry{Name: entry.Name(), Dir: entry.IsDir()})
		}
		return out, nil
	}
}
