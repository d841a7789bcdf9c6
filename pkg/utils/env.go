package utils

import "os"

// EnvOrDefault reads an environment variable, falling back when it is
// unset or empty.
func EnvOrDefault(name, fallback string) string {
	if v, ok := os.LookupEnv(name); ok && v != "" {
		return v
	}

	return fallback
}
