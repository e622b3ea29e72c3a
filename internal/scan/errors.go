package scan

import (
	"errors"
	"io/fs"
	"net/url"
)

// Error taxonomy for per-item failures inside a cycle. Vanished files are
// expected churn and skipped without counting as failures; remote store
// failures abort the rest of the account's uploads because every remaining
// attempt would fail the same way.
var (
	ErrVanished = errors.New("file vanished during scan")
	ErrRemote   = errors.New("remote store failure")
)

// vanished reports whether an upload failed because the file disappeared
// between enumeration and the attempt.
func vanished(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}

// remoteFailure reports whether an upload failed at the transport layer
// rather than because of the file itself.
func remoteFailure(err error) bool {
	var urlErr *url.Error
	return errors.As(err, &urlErr)
}
