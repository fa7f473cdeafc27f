package env

import (
	"os"
	"strings"
)

// Prefix namespaces every variable the services read.
const Prefix = "FASTREPAIR_"

// Get returns FASTREPAIR_<key>, then the bare key, then fallback. The bare
// name keeps older workstation installs working.
func Get(key, fallback string) string {
	key = strings.TrimPrefix(key, Prefix)
	if val := strings.TrimSpace(os.Getenv(Prefix + key)); val != "" {
		return val
	}
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		return val
	}
	return fallback
}
