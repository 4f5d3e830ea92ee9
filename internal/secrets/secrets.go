package secrets

import (
	"fmt"
	"os"
	"strings"
)

// Lookup resolves a secret from <KEY>_FILE (Docker secrets) or from <KEY>.
// The file takes precedence; found is false when neither is set.
func Lookup(envKey string) (value string, found bool, err error) {
	if filePath := os.Getenv(envKey + "_FILE"); filePath != "" {
		data, err := os.ReadFile(filePath)
		if err != nil {
			return "", false, fmt.Errorf("read secret file %s: %w", filePath, err)
		}
		return strings.TrimSpace(string(data)), true, nil
	}

	if value := os.Getenv(envKey); value != "" {
		return value, true, nil
	}
	return "", false, nil
}

// GetSecret returns the secret or defaultValue when it is not set
func GetSecret(envKey string, defaultValue string) (string, error) {
	value, found, err := Lookup(envKey)
	if err != nil {
		return "", err
	}
	if !found || value == "" {
		return defaultValue, nil
	}
	return value, nil
}

// GetOptionalSecret returns the secret, falling back to defaultValue on any failure
func GetOptionalSecret(envKey string, defaultValue string) string {
	value, err := GetSecret(envKey, defaultValue)
	if err != nil {
		return defaultValue
	}
	return value
}
