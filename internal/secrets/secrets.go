// Package secrets resolves credentials such as the Sentry DSN from literal
// config values, ${VAR} references or mounted secret files.
package secrets

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/naturethrive/birdmonitor/internal/logger"
)

const (
	// maxFileSize bounds secret file reads; secrets are tokens, not documents.
	maxFileSize = 64 * 1024

	// groupOtherPerms are the permission bits that trigger a warning.
	groupOtherPerms = 0o077
)

// ExpandString expands ${VAR} and ${VAR:-fallback} references. A reference to
// an unset variable without a fallback is an error naming every such variable.
func ExpandString(s string) (string, error) {
	if s == "" {
		return "", nil
	}

	var missing []string
	expanded := os.Expand(s, func(key string) string {
		name, fallback, hasFallback := strings.Cut(key, ":-")
		if value := os.Getenv(name); value != "" {
			return value
		}
		if hasFallback {
			return fallback
		}
		missing = append(missing, name)
		return ""
	})

	if len(missing) > 0 {
		return "", fmt.Errorf("missing required environment variable(s): %s", strings.Join(missing, ", "))
	}
	return expanded, nil
}

// ReadFile reads a secret from a regular file, dropping trailing newlines.
// Files readable by group or others are accepted with a warning since
// container runtimes commonly mount secrets that way.
func ReadFile(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("secret file path is empty")
	}
	cleanPath := filepath.Clean(path)

	info, err := os.Stat(cleanPath)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("secret file not found: %s", cleanPath)
		}
		return "", fmt.Errorf("failed to stat secret file %s: %w", cleanPath, err)
	}
	if !info.Mode().IsRegular() {
		return "", fmt.Errorf("secret path is not a regular file: %s", cleanPath)
	}
	if info.Size() > maxFileSize {
		return "", fmt.Errorf("secret file too large (max %d bytes): %s", maxFileSize, cleanPath)
	}
	if perm := info.Mode().Perm(); perm&groupOtherPerms != 0 {
		logger.Global().Module("secrets").Warn("secret file is readable by group or others",
			logger.String("path", cleanPath),
			logger.String("perms", fmt.Sprintf("%04o", perm)))
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return "", fmt.Errorf("failed to read secret file %s: %w", cleanPath, err)
	}
	secret := strings.TrimRight(string(data), "\r\n")
	if secret == "" {
		return "", fmt.Errorf("secret file is empty: %s", cleanPath)
	}
	return secret, nil
}

// Resolve returns the secret from filePath when set, otherwise value with
// environment references expanded. Both empty resolves to "".
func Resolve(filePath, value string) (string, error) {
	if filePath != "" {
		secret, err := ReadFile(filePath)
		if err != nil {
			return "", fmt.Errorf("failed to read secret from file: %w", err)
		}
		return secret, nil
	}
	return ExpandString(value)
}
