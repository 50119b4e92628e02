package agent

import (
	"fmt"
	"strings"
)

// The remote agent reports problems as free text with no format guarantee,
// and in whatever locale the machine runs. Classification is a rule-based
// match over an explicit, extensible marker table. Anything non-zero that
// matches no marker is treated as transient rather than guessing a more
// specific kind.

// Markers that confirm the queried account is not configured on the target.
var notManagedMarkers = []string{
	"configuration is not found",        // en: User "x" configuration is not found
	"Konfiguration wurde nicht gefunden", // de
}

// Markers for the agent refusing the operator account. The German agent
// emits this with exit status 0, so it has to be matched in the output.
var accessDeniedMarkers = []string{
	"Zugriff verweigert",
	"access denied",
}

// exitCommandNotFound is the shell's exit status for an absent command,
// i.e. the time agent is not installed on the target.
const exitCommandNotFound = 127

type statusKind int

const (
	statusOK statusKind = iota
	statusNotManaged
	statusTransient
)

func containsAny(text string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(text, m) {
			return true
		}
	}
	return false
}

// classifyStatus decides what a status query's output and exit code mean.
// Only a confirmed marker (or a missing agent) is authoritative about the
// account not being managed; every other non-zero exit is transient so an
// offline or misbehaving machine never drops out of the managed set.
func classifyStatus(host, user, stdout, stderr string, exitCode int) (statusKind, string) {
	if exitCode == exitCommandNotFound {
		return statusNotManaged, fmt.Sprintf("time agent not found on %s", host)
	}
	combined := stdout + "\n" + stderr
	if containsAny(combined, accessDeniedMarkers) {
		return statusNotManaged, "insufficient privileges on remote agent"
	}
	if containsAny(combined, notManagedMarkers) {
		return statusNotManaged, fmt.Sprintf("user %q not found on %s", user, host)
	}
	if exitCode != 0 {
		return statusTransient, fmt.Sprintf("status query exited %d: %s", exitCode, strings.TrimSpace(stderr))
	}
	return statusOK, ""
}

// pickDiagnostic returns the more informative of two attempt diagnostics.
func pickDiagnostic(first, second string) string {
	first = strings.TrimSpace(first)
	second = strings.TrimSpace(second)
	if len(second) >= len(first) && second != "" {
		return second
	}
	if first != "" {
		return first
	}
	return second
}
