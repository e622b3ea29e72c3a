// Package account resolves the account registry from environment-supplied
// credentials. Credentials never appear in the config file.
package account
