package config

import (
	"encoding/base64"
	"fmt"
	"os"
)

// DefaultMasterKeyEnv is read when no key is set in the file.
const DefaultMasterKeyEnv = "ENVIROFLOW_MASTER_KEY"

// CredentialsConfig holds the master key used to open controller credentials.
type CredentialsConfig struct {
	// MasterKey is a base64 encoded key of at least 32 bytes.
	MasterKey string `json:"master_key"`
	// MasterKeyEnv names the environment variable holding the key.
	MasterKeyEnv string `json:"master_key_env"`
}

// Key returns the configured key, preferring MasterKey over the environment.
func (c CredentialsConfig) Key() string {
	if c.MasterKey != "" {
		return c.MasterKey
	}
	name := c.MasterKeyEnv
	if name == "" {
		name = DefaultMasterKeyEnv
	}
	return os.Getenv(name)
}

// Validate only checks the encoding; an empty key is reported when the
// service starts.
func (c CredentialsConfig) Validate() error {
	if c.MasterKey == "" {
		return nil
	}
	if _, err := base64.StdEncoding.DecodeString(c.MasterKey); err != nil {
		return fmt.Errorf("master_key is not valid base64: %w", err)
	}
	return nil
}
