package media

import (
	"path/filepath"
	"strings"
)

// Class is the scan-time classification of a directory entry.
type Class int

const (
	ClassUnsupported Class = iota
	ClassHiddenOrTemp
	ClassArchive
	ClassMedia
)

var imageExtensions = map[string]struct{}{
	".jpg": {}, ".jpeg": {}, ".png": {}, ".gif": {}, ".webp": {},
	".heic": {}, ".heif": {}, ".tiff": {}, ".tif": {}, ".bmp": {},
	".raw": {}, ".arw": {}, ".cr2": {}, ".nef": {}, ".orf": {},
	".raf": {}, ".dng": {},
}

var videoExtensions = map[string]struct{}{
	".mp4": {}, ".mov": {}, ".avi": {}, ".mkv": {}, ".webm": {},
	".m4v": {}, ".3gp": {}, ".mts": {}, ".m2ts": {},
}

var archiveExtensions = map[string]struct{}{
	".zip": {},
}

// Classify buckets a file name for the scan pipeline. Hidden and temp name
// patterns win over everything else so an in-progress ".photo.jpg.part"
// style copy is never touched.
func Classify(name string) Class {
	base := filepath.Base(name)
	if IsHiddenOrTemp(base) {
		return ClassHiddenOrTemp
	}
	ext := strings.ToLower(filepath.Ext(base))
	if _, ok := archiveExtensions[ext]; ok {
		return ClassArchive
	}
	if isMediaExt(ext) {
		return ClassMedia
	}
	return ClassUnsupported
}

// IsMedia reports whether the name carries a supported media extension.
func IsMedia(name string) bool {
	return isMediaExt(strings.ToLower(filepath.Ext(filepath.Base(name))))
}

// IsArchive reports whether the name carries a supported archive extension.
func IsArchive(name string) bool {
	_, ok := archiveExtensions[strings.ToLower(filepath.Ext(filepath.Base(name)))]
	return ok
}

// IsHiddenOrTemp reports whether the base name matches hidden or
// temporary-file patterns written by sync clients mid-copy.
func IsHiddenOrTemp(base string) bool {
	if base == "" {
		return false
	}
	if strings.HasPrefix(base, ".") || strings.HasPrefix(base, "~") {
		return true
	}
	lower := strings.ToLower(base)
	return strings.HasSuffix(lower, ".part") || strings.HasSuffix(lower, ".tmp") || strings.HasSuffix(lower, ".crdownload")
}

func isMediaExt(ext string) bool {
	if _, ok := imageExtensions[ext]; ok {
		return true
	}
	_, ok := videoExtensions[ext]
	return ok
}
