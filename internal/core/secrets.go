package core

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

// LoadSecretsEnv reads $XDG_CONFIG_HOME/ahctl/secrets.env (or
// ~/.config/ahctl/secrets.env) when path is empty. A missing file is not an
// error. Format: KEY=VALUE, # comments.
func LoadSecretsEnv(path string) (map[string]string, error) {
	if path == "" {
		path = filepath.Join(configDir(), "secrets.env")
	}
	secrets, err := godotenv.Read(path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read secrets: %w", err)
	}
	return secrets, nil
}

// ApplySecrets exports secrets into the process environment without
// overriding variables that are already set, so real env always wins.
func ApplySecrets(secrets map[string]string) error {
	for k, v := range secrets {
		if _, ok := os.LookupEnv(k); ok {
			continue
		}
		if err := os.Setenv(k, v); err != nil {
			return fmt.Errorf("export %s: %w", k, err)
		}
	}
	return nil
}
