// Package credential keeps the server API token in the OS keyring so that it
// never has to be written to config.yaml.
package credential

import (
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/99designs/keyring"
)

const serviceName = "workcal"

// Vault reads and writes API tokens, one per server.
type Vault struct {
	ring keyring.Keyring
}

// Open returns a Vault backed by the platform keyring, falling back to an
// encrypted file store under configDir.
func Open(configDir string) (*Vault, error) {
	ring, err := keyring.Open(keyring.Config{
		ServiceName: serviceName,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		},
		FileDir:                  filepath.Join(configDir, "credentials"),
		FilePasswordFunc:         keyring.FixedStringPrompt("workcal-file-key"),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}
	return &Vault{ring: ring}, nil
}

// NewVault wraps an already opened keyring.
func NewVault(ring keyring.Keyring) *Vault {
	return &Vault{ring: ring}
}

// TokenKey is the keyring key under which the token for serverURL is kept.
// Tokens are scoped by host so that one client can talk to several servers.
func TokenKey(serverURL string) string {
	host := serverURL
	if u, err := url.Parse(serverURL); err == nil && u.Host != "" {
		host = u.Host
	}
	return "api-token:" + strings.ToLower(host)
}

// Token returns the stored token for serverURL, or "" when none is stored.
func (v *Vault) Token(serverURL string) (string, error) {
	key := TokenKey(serverURL)
	item, err := v.ring.Get(key)
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("getting credential %q: %w", key, err)
	}
	return string(item.Data), nil
}

// SetToken stores token for serverURL, replacing any previous one.
func (v *Vault) SetToken(serverURL, token string) error {
	key := TokenKey(serverURL)
	err := v.ring.Set(keyring.Item{
		Key:         key,
		Data:        []byte(token),
		Label:       "workcal API token",
		Description: serverURL,
	})
	if err != nil {
		return fmt.Errorf("setting credential %q: %w", key, err)
	}
	return nil
}

// DeleteToken removes the token for serverURL. Removing a token that was
// never stored is not an error.
func (v *Vault) DeleteToken(serverURL string) error {
	key := TokenKey(serverURL)
	err := v.ring.Remove(key)
	if err != nil && !errors.Is(err, keyring.ErrKeyNotFound) {
		return fmt.Errorf("deleting credential %q: %w", key, err)
	}
	return nil
}

// ResolveToken picks the token to send to serverURL: an explicitly
// configured token wins, otherwise the keyring is consulted. A nil vault
// means no keyring is available.
func ResolveToken(configured, serverURL string, v *Vault) (string, error) {
	if configured != "" {
		return configured, nil
	}
	if v == nil {
		return "", nil
	}
	return v.Token(serverURL)
}
