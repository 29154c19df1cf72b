package orchestrator

import (
	"fmt"
	"os"
	"time"

	"github.com/tis24dev/blocksave/internal/logging"
)

// familyLogTimeFormat matches the main logger's timestamp format so the two
// logs correlate.
const familyLogTimeFormat = "2006-01-02 15:04:05"

// appendFamilyLog appends one timestamped line to a family's operation log.
// The log is append-only and best-effort: a write failure warns but never
// changes the operation verdict.
func appendFamilyLog(logger *logging.Logger, path, runID, format string, args ...interface{}) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0640)
	if err != nil {
		logger.Warning("Failed to open family log %s: %v", path, err)
		return
	}
	defer f.Close()

	line := fmt.Sprintf(format, args...)
	if _, err := fmt.Fprintf(f, "%s [%s] %s\n", time.Now().Format(familyLogTimeFormat), shortRunID(runID), line); err != nil {
		logger.Warning("Failed to append to family log %s: %v", path, err)
	}
}

// shortRunID keeps family log lines readable: the first UUID group is unique
// enough to correlate start/success/failure lines of one run.
func shortRunID(runID string) string {
	if len(runID) > 8 {
		return runID[:8]
	}
	return runID
}
