// Package settings stores per-provider API keys outside the project tree
// so config files can be committed without leaking credentials.
//
// Keys are stored in the XDG data directory:
//
//	$XDG_DATA_HOME/rpgtrans/auth.json  (default: ~/.local/share/rpgtrans/)
//
// File permissions are 0600 (owner read/write only).
//
// Lookup order for API keys:
//  1. --api-key flag (highest priority)
//  2. RPGTRANS_API_KEY environment variable
//  3. This credential store
package settings

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

const (
	dataDirName = "rpgtrans"
	fileName    = "auth.json"
)

// EnvAPIKey is the environment variable consulted before the store.
const EnvAPIKey = "RPGTRANS_API_KEY"

// Info is the stored credential for one provider.
type Info struct {
	// Key is the API key.
	Key string `json:"key"`
	// BaseURL is an optional custom endpoint remembered with the key.
	BaseURL string `json:"baseUrl,omitempty"`
}

// Store holds all provider credentials, keyed by provider name.
type Store map[string]*Info

// ---------------------------------------------------------------------------
// File path
// ---------------------------------------------------------------------------

// dataDir returns the XDG data directory for rpgtrans.
// Respects $XDG_DATA_HOME (falls back to ~/.local/share).
func dataDir() (string, error) {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, dataDirName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(home, ".local", "share", dataDirName), nil
}

func filePath() (string, error) {
	dir, err := dataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, fileName), nil
}

// FilePath returns the auth.json file path for display purposes.
func FilePath() string {
	p, err := filePath()
	if err != nil {
		return ""
	}
	return p
}

// ---------------------------------------------------------------------------
// Load / Save
// ---------------------------------------------------------------------------

// Load reads the credential store from disk.
// Returns an empty store if the file doesn't exist or is invalid.
func Load() Store {
	path, err := filePath()
	if err != nil {
		return make(Store)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return make(Store)
	}

	var store Store
	if err := json.Unmarshal(data, &store); err != nil {
		return make(Store)
	}
	if store == nil {
		return make(Store)
	}
	return store
}

// Save writes the credential store to disk with 0600 permissions.
func Save(store Store) error {
	path, err := filePath()
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(store, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling credentials: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("writing auth file: %w", err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Get / Set / Remove
// ---------------------------------------------------------------------------

// Get returns the credential for a provider, or nil if not found.
func Get(provider string) *Info {
	return Load()[provider]
}

// Set stores a credential for a provider (upsert).
func Set(provider string, info *Info) error {
	store := Load()
	store[provider] = info
	return Save(store)
}

// Remove deletes the credential for a provider.
func Remove(provider string) error {
	store := Load()
	if _, ok := store[provider]; !ok {
		return nil
	}
	delete(store, provider)
	return Save(store)
}

// ResolveAPIKey applies the documented lookup order: explicit flag value,
// then RPGTRANS_API_KEY, then the credential store.
func ResolveAPIKey(flagValue, provider string) string {
	if flagValue != "" {
		return flagValue
	}
	if env := os.Getenv(EnvAPIKey); env != "" {
		return env
	}
	if info := Get(provider); info != nil {
		return info.Key
	}
	return ""
}
