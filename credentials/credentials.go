// Package credentials resolves the database password used by the feature
// export and the run ledger.
//
// The password is never written to the pipeline configuration. It is read
// from GROUPPREP_DB_PASSWORD when set (CI/testing), otherwise from the
// system keyring:
// - macOS: Keychain
// - Windows: Credential Manager
// - Linux: Secret Service (libsecret)
package credentials

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"sync"

	"github.com/zalando/go-keyring"
)

const (
	// PasswordEnvVar overrides the keyring lookup.
	PasswordEnvVar = "GROUPPREP_DB_PASSWORD"

	// keyringService is the service name used in the system keyring.
	keyringService = "groupprep"
)

var (
	// ErrNoPassword is returned when no provider holds a password for the user.
	ErrNoPassword = errors.New("no database password stored")
	// ErrKeyringUnavailable indicates the system keyring is not available.
	ErrKeyringUnavailable = errors.New("system keyring unavailable")
)

// PasswordProvider is a source of database passwords keyed by user.
type PasswordProvider interface {
	// Password returns the password for user, or ErrNoPassword.
	Password(user string) (string, error)

	// Description returns a human-readable description of the storage mechanism.
	Description() string
}

// KeyringProvider stores passwords in the system keyring under the
// "groupprep" service, one entry per database user.
type KeyringProvider struct {
	mu sync.Mutex
}

// NewKeyringProvider creates a new KeyringProvider.
func NewKeyringProvider() *KeyringProvider {
	return &KeyringProvider{}
}

// Password retrieves the password for user from the keyring.
func (p *KeyringProvider) Password(user string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	pw, err := keyring.Get(keyringService, user)
	if err == nil {
		return pw, nil
	}
	if errors.Is(err, keyring.ErrNotFound) {
		return "", ErrNoPassword
	}
	return "", fmt.Errorf("%w: %v", ErrKeyringUnavailable, err)
}

// SetPassword stores the password for user, replacing any existing entry.
func (p *KeyringProvider) SetPassword(user, password string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if user == "" {
		return errors.New("database user is required")
	}
	if err := keyring.Set(keyringService, user, password); err != nil {
		return fmt.Errorf("%w: storing password: %v", ErrKeyringUnavailable, err)
	}
	return nil
}

// DeletePassword removes the password for user. Deleting a missing entry is
// not an error.
func (p *KeyringProvider) DeletePassword(user string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	err := keyring.Delete(keyringService, user)
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("%w: deleting password: %v", ErrKeyringUnavailable, err)
	}
	return nil
}

// Description returns a description of this provider.
func (p *KeyringProvider) Description() string {
	switch runtime.GOOS {
	case "darwin":
		return "macOS Keychain"
	case "windows":
		return "Windows Credential Manager"
	default:
		return "System Keyring (Secret Service)"
	}
}

// EnvProvider returns the same password for every user from an environment
// variable. This is primarily for testing and CI environments.
type EnvProvider struct {
	envVar string
}

// NewEnvProvider creates a new EnvProvider that reads the given env var.
func NewEnvProvider(envVar string) *EnvProvider {
	return &EnvProvider{envVar: envVar}
}

// Password returns the env var value, or ErrNoPassword when it is unset.
func (p *EnvProvider) Password(string) (string, error) {
	if v := os.Getenv(p.envVar); v != "" {
		return v, nil
	}
	return "", ErrNoPassword
}

// Description returns a description of this provider.
func (p *EnvProvider) Description() string {
	return fmt.Sprintf("Environment variable (%s)", p.envVar)
}

// chain tries providers in order until one has a password.
type chain []PasswordProvider

func (c chain) Password(user string) (string, error) {
	var errs []error
	for _, p := range c {
		pw, err := p.Password(user)
		if err == nil {
			return pw, nil
		}
		if !errors.Is(err, ErrNoPassword) {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return "", errors.Join(append([]error{ErrNoPassword}, errs...)...)
	}
	return "", ErrNoPassword
}

func (c chain) Description() string {
	desc := ""
	for i, p := range c {
		if i > 0 {
			desc += ", then "
		}
		desc += p.Description()
	}
	return desc
}

// DefaultProvider returns the provider chain for the current environment.
// Priority:
// 1. GROUPPREP_DB_PASSWORD environment variable
// 2. System keyring
func DefaultProvider() PasswordProvider {
	return chain{NewEnvProvider(PasswordEnvVar), NewKeyringProvider()}
}

// Lookup returns the password for user from the default providers. A
// missing password yields "" and no error so that trust or peer
// authentication still works; keyring failures are returned.
func Lookup(user string) (string, error) {
	pw, err := DefaultProvider().Password(user)
	if err == nil {
		return pw, nil
	}
	if errors.Is(err, ErrNoPassword) && !errors.Is(err, ErrKeyringUnavailable) {
		return "", nil
	}
	return "", err
}

// MaskPassword returns a display-safe form of a password.
func MaskPassword(pw string) string {
	if pw == "" {
		return "(none)"
	}
	if len(pw) <= 4 {
		return "****"
	}
	return pw[:2] + "****" + pw[len(pw)-2:]
}
