// Package auth keeps Music Assistant API tokens in the system keyring.
package auth

import (
	"errors"
	"net/url"

	"github.com/massdroid-cli/massd/constant"
	"github.com/zalando/go-keyring"
)

// account names the keyring entry for a server. Tokens are kept per host so one
// machine can talk to several servers.
func account(server string) string {
	if u, err := url.Parse(server); err == nil && u.Host != "" {
		return "token@" + u.Host
	}
	return "token@" + server
}

// SetToken stores the API token for server.
func SetToken(server, token string) error {
	return keyring.Set(constant.App, account(server), token)
}

// Token returns the stored token for server, or "" when none is stored.
func Token(server string) (string, error) {
	token, err := keyring.Get(constant.App, account(server))
	if errors.Is(err, keyring.ErrNotFound) {
		return "", nil
	}
	return token, err
}

// DeleteToken removes the stored token for server. Removing a missing token is not an error.
func DeleteToken(server string) error {
	err := keyring.Delete(constant.App, account(server))
	if errors.Is(err, keyring.ErrNotFound) {
		return nil
	}
	return err
}

// Resolve prefers an explicitly configured token and falls back to the keyring.
// Keyring failures degrade to no token.
func Resolve(server, configured string) string {
	if configured != "" || server == "" {
		return configured
	}
	token, err := Token(server)
	if err != nil {
		return ""
	}
	return token
}
