// Package credential resolves the password for a (host, username) pair from
// an explicit value, the OS secret store or an interactive prompt, and keeps
// the secret store in sync with the password actually used.
package credential

import (
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
)

// ErrNotFound is returned by a Store that holds no secret for the key.
var ErrNotFound = errors.New("credential not found")

// Store is an OS-level secret store keyed by (host, username).
type Store interface {
	Get(host, username string) (string, error)
	Set(host, username, password string) error
}

// KeyringStore is the OS secret store (Windows Credential Manager, macOS Keychain, Secret Service).
type KeyringStore struct{}

// Get returns the stored password or ErrNotFound.
func (KeyringStore) Get(host, username string) (string, error) {
	secret, err := keyring.Get(host, username)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("secret store get %s@%s: %w", username, host, err)
	}
	return secret, nil
}

// Set stores password for (host, username), replacing any previous value.
func (KeyringStore) Set(host, username, password string) error {
	if err := keyring.Set(host, username, password); err != nil {
		return fmt.Errorf("secret store set %s@%s: %w", username, host, err)
	}
	return nil
}

// Location describes where the platform keeps stored credentials, for the
// notice printed after a write. Empty when there is nothing useful to say.
func Location(goos, host string) (saved, hint string) {
	switch goos {
	case "windows":
		return "Credentials successfully saved to Windows Credential Manager.",
			"Windows OS: Your credentials will be stored here Control Panel > Credential Manager > " +
				"Windows Credential > Generic Credentials. You can remove or update it anytime."
	case "darwin":
		return "Credentials successfully saved to macOS Credential Manager.",
			fmt.Sprintf("macOS: Your credentials will be stored here Keychain Access > search for %q. "+
				"You can remove or update it anytime.", host)
	case "linux", "freebsd", "openbsd", "netbsd":
		return "Credentials successfully saved to the Secret Service keyring.",
			fmt.Sprintf("Your credentials are stored under service %q in the login keyring "+
				"(e.g. Seahorse, KWalletManager or secret-tool). You can remove or update it anytime.", host)
	default:
		return "", ""
	}
}
