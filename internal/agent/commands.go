package agent

import (
	"fmt"
	"strconv"
	"strings"
)

// The remote agent is driven through single command invocations with
// positional arguments. List arguments are semicolon separated and quoted
// as one token.

func statusCommand(user string) string {
	return fmt.Sprintf("timekpra --userinfo %s", user)
}

func adjustTimeCommand(user, op string, seconds int) string {
	return fmt.Sprintf("timekpra --settimeleft %s %s %d", user, op, seconds)
}

func allowedDaysCommand(user string, days []int) string {
	return fmt.Sprintf("timekpra --setalloweddays %s '%s'", user, joinInts(days))
}

func timeLimitsCommand(user string, limits []int) string {
	return fmt.Sprintf("timekpra --settimelimits %s '%s'", user, joinInts(limits))
}

func allowedHoursCommand(user string, weekday int, tokens []string) string {
	return fmt.Sprintf("timekpra --setallowedhours %s %d '%s'", user, weekday, strings.Join(tokens, ";"))
}

// escalate wraps a command for the second, privileged attempt. The retry
// policy is fixed at two attempts: plain, then sudo.
func escalate(command string) string {
	return "sudo -n " + command
}

func joinInts(ns []int) string {
	parts := make([]string, len(ns))
	for i, n := range ns {
		parts[i] = strconv.Itoa(n)
	}
	return strings.Join(parts, ";")
}
