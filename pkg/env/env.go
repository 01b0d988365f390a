// Package env holds the one lookup helper the logger needs before the full
// envconfig pass has run.
package env

import (
	"os"
	"strings"
)

// Get reads key from the environment, falling back when it is unset or
// blank.
func Get(key, fallback string) string {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		return val
	}
	return fallback
}
