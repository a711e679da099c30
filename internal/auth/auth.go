// Package auth handles bearer token storage and retrieval for hbagent.
//
// Tokens are sourced in the following priority order:
//  1. Environment variable: CLI_TOKEN
//  2. OS Keyring (macOS Keychain, Windows Credential Manager, Linux Secret Service)
//  3. Config file fallback: <user config dir>/hbagent/token (for non-interactive environments)
package auth

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/agentplus/hbagent/internal/paths"
	"github.com/zalando/go-keyring"
)

const (
	// keyringService is the service name used in OS keyring storage.
	keyringService = "hbagent"
	// keyringUser is the user/account name used in OS keyring storage.
	keyringUser = "token"
	// envVarName is the environment variable carrying the bearer token.
	envVarName = "CLI_TOKEN"
)

// CredentialSource indicates where the token was found.
type CredentialSource string

// Credential source constants identify where the token was loaded from.
const (
	SourceEnv     CredentialSource = "environment variable"
	SourceKeyring CredentialSource = "keyring"
	SourceFile    CredentialSource = "config file"
	SourceNone    CredentialSource = ""
)

// GetToken returns the bearer token and its source.
// Returns empty strings if no token is found.
func GetToken() (source CredentialSource, token string) {
	// Priority 1: Environment variable
	if tok := os.Getenv(envVarName); tok != "" {
		return SourceEnv, tok
	}

	// Priority 2: OS Keyring
	if tok, err := keyring.Get(keyringService, keyringUser); err == nil && tok != "" {
		return SourceKeyring, tok
	}

	// Priority 3: Config file fallback
	if tok := readCredentialsFile(); tok != "" {
		return SourceFile, tok
	}

	return SourceNone, ""
}

// StoreToken stores the bearer token in the OS keyring.
// Falls back to file storage if the keyring is unavailable.
func StoreToken(token string) error {
	// Try keyring first
	err := keyring.Set(keyringService, keyringUser, token)
	if err == nil {
		return nil
	}

	// Fallback to file storage
	return writeCredentialsFile(token)
}

// DeleteToken removes the stored bearer token.
func DeleteToken() error {
	// Try to delete from keyring
	keyringErr := keyring.Delete(keyringService, keyringUser)

	// Also try to delete from file
	fileErr := deleteCredentialsFile()

	// Return error only if both failed and nothing was deleted
	if keyringErr != nil && fileErr != nil {
		return fmt.Errorf("no stored token found")
	}

	return nil
}

// credentialsFilePath returns the path to the token fallback file.
func credentialsFilePath() string {
	path, err := paths.CredentialsFile()
	if err != nil {
		return ""
	}

	return filepath.Clean(path)
}

// readCredentialsFile reads the token from the file fallback.
func readCredentialsFile() string {
	path := credentialsFilePath()
	if path == "" {
		return ""
	}

	data, err := os.ReadFile(path) //nolint:gosec // G304: path from controlled config directory
	if err != nil {
		return ""
	}

	return strings.TrimSpace(string(data))
}

// writeCredentialsFile writes the token to the file fallback.
func writeCredentialsFile(token string) error {
	path := credentialsFilePath()
	if path == "" {
		return fmt.Errorf("could not determine home directory")
	}

	// Create directory with secure permissions
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// Write file with secure permissions (owner read/write only)
	if err := os.WriteFile(path, []byte(token+"\n"), 0o600); err != nil {
		return fmt.Errorf("failed to write token file: %w", err)
	}

	return nil
}

// deleteCredentialsFile removes the token fallback file.
func deleteCredentialsFile() error {
	path := credentialsFilePath()
	if path == "" {
		return fmt.Errorf("could not determine home directory")
	}

	err := os.Remove(path)
	if os.IsNotExist(err) {
		return fmt.Errorf("token file not found")
	}

	if err != nil {
		return fmt.Errorf("remove token file: %w", err)
	}

	return nil
}
