package instance

import (
	"os"
	"strings"
)

// EnvWorkerID names the process replica in logs. Heroku's DYNO is used
// when it is unset.
const EnvWorkerID = "RAFFLEPOT_WORKER_ID"

// GetID returns the replica identifier, or serviceKind + "-local" when the
// process was started without one.
func GetID(serviceKind string) string {
	for _, key := range []string{EnvWorkerID, "DYNO"} {
		if id := strings.TrimSpace(os.Getenv(key)); id != "" {
			return id
		}
	}
	if serviceKind == "" {
		serviceKind = "worker"
	}
	return serviceKind + "-local"
}
