package scan

import (
	"errors"
	"io/fs"
	"path/filepath"
	"sort"

	"snapsync/internal/media"
)

// Candidates is one account's scan inventory: media files ready for the
// upload path and archives awaiting extraction, both as absolute paths.
type Candidates struct {
	Media    []string
	Archives []string
}

// Collect walks the account directory and buckets every visible file by
// classification. Hidden and temporary entries are skipped, hidden
// directories subtree and all. Files vanishing mid-walk are expected and
// ignored. Results are sorted for deterministic cycle ordering.
func Collect(root string) (Candidates, error) {
	var found Candidates
	err := filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if path == root {
			return nil
		}
		if entry.IsDir() {
			if media.IsHiddenOrTemp(entry.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		switch media.Classify(entry.Name()) {
		case media.ClassMedia:
			found.Media = append(found.Media, path)
		case media.ClassArchive:
			found.Archives = append(found.Archives, path)
		}
		return nil
	})
	if err != nil {
		return Candidates{}, err
	}
	sort.Strings(found.Media)
	sort.Strings(found.Archives)
	return found, nil
}
