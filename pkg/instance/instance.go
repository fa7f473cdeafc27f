package instance

import (
	"os"
	"strings"

	"github.com/fastrepair/fastrepair-backend/pkg/env"
)

const defaultID = "worker-0"

// GetID identifies this worker process in logs and lock ownership. It uses
// FASTREPAIR_WORKER_ID, then the hostname.
func GetID() string {
	if id := strings.TrimSpace(env.Get("WORKER_ID", "")); id != "" {
		return id
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return defaultID
}
