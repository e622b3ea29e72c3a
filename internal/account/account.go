package account

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ErrNoAccounts indicates that no credential environment variables were found.
// This is the only fatal startup condition in steady-state operation.
var ErrNoAccounts = errors.New("no accounts configured")

// Account binds a watch subdirectory to an opaque remote-store credential.
// Accounts are immutable for the process lifetime.
type Account struct {
	// Name is the normalized lower-case account identifier.
	Name string
	// APIKey is the opaque bearer token used against the remote store.
	APIKey string
	// Dir is the account's private subdirectory under the watch root.
	Dir string
}

// FromEnv builds the account registry from environment variables carrying the
// given prefix (e.g. SNAPSYNC_USER_RUSTY=api-key). Identifiers are the
// lower-cased variable suffix; each account owns <watchRoot>/<identifier>.
func FromEnv(prefix, watchRoot string) ([]Account, error) {
	if strings.TrimSpace(prefix) == "" {
		return nil, errors.New("account env prefix must be set")
	}

	var accounts []Account
	for _, entry := range os.Environ() {
		key, value, ok := strings.Cut(entry, "=")
		if !ok || !strings.HasPrefix(key, prefix) {
			continue
		}
		name := strings.ToLower(strings.TrimPrefix(key, prefix))
		if name == "" || strings.TrimSpace(value) == "" {
			continue
		}
		accounts = append(accounts, Account{
			Name:   name,
			APIKey: strings.TrimSpace(value),
			Dir:    filepath.Join(watchRoot, name),
		})
	}

	if len(accounts) == 0 {
		return nil, fmt.Errorf("%w: set %s<NAME>=<api-key> in the environment", ErrNoAccounts, prefix)
	}

	sort.Slice(accounts, func(i, j int) bool { return accounts[i].Name < accounts[j].Name })
	return accounts, nil
}

// EnsureDirs creates each account's drop directory under the watch root.
func EnsureDirs(accounts []Account) error {
	for _, acct := range accounts {
		if err := os.MkdirAll(acct.Dir, 0o755); err != nil {
			return fmt.Errorf("create account directory %q: %w", acct.Dir, err)
		}
	}
	return nil
}

// Names returns the sorted account identifiers, used for startup logging.
func Names(accounts []Account) []string {
	names := make([]string, 0, len(accounts))
	for _, acct := range accounts {
		names = append(names, acct.Name)
	}
	return names
}
