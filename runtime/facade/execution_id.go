package facade

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// NewExecutionID returns a globally unique execution identifier suitable
// for use as a durable workflow execution ID.
//
// The identifier is prefixed with a normalized task ID to improve
// observability in logs, metrics, and tracing without sacrificing
// uniqueness.
func NewExecutionID(taskID string) string {
	prefix := strings.ReplaceAll(taskID, ".", "-")
	if prefix == "" {
		prefix = "execution"
	}
	return fmt.Sprintf("%s-%s", prefix, uuid.NewString())
}
