package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCommandEncoding(t *testing.T) {
	assert.Equal(t, "timekpra --userinfo kid", statusCommand("kid"))
	assert.Equal(t, "timekpra --settimeleft kid + 900", adjustTimeCommand("kid", "+", 900))
	assert.Equal(t, "timekpra --setalloweddays kid '1;2;5'", allowedDaysCommand("kid", []int{1, 2, 5}))
	assert.Equal(t, "timekpra --settimelimits kid '7200;7200;3600'", timeLimitsCommand("kid", []int{7200, 7200, 3600}))
	assert.Equal(t, "timekpra --setallowedhours kid 3 '10[15-59];11;12[0-30]'",
		allowedHoursCommand("kid", 3, []string{"10[15-59]", "11", "12[0-30]"}))
}

func TestEscalateWrapsOnce(t *testing.T) {
	assert.Equal(t, "sudo -n timekpra --userinfo kid", escalate(statusCommand("kid")))
}

func TestWeeklyQuotaCommandsForSingleDay(t *testing.T) {
	// A quota of {monday: 7200, rest 0} yields exactly one allowed day
	// and one limit, in matching order.
	var days, limits []int
	seconds := [7]int{7200, 0, 0, 0, 0, 0, 0}
	for i, s := range seconds {
		if s > 0 {
			days = append(days, i+1)
			limits = append(limits, s)
		}
	}
	assert.Equal(t, "timekpra --setalloweddays kid '1'", allowedDaysCommand("kid", days))
	assert.Equal(t, "timekpra --settimelimits kid '7200'", timeLimitsCommand("kid", limits))
}
