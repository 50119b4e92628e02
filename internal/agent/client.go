package agent

import (
	"bytes"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/ssh"

	"tkremote/internal/config"
	"tkremote/internal/model"
)

// Client talks to the time agent on one target machine. A client is built
// per target per reconciliation pass and never reused across targets; each
// command dials its own authenticated session and closes it on every exit
// path.
type Client struct {
	host string
	cfg  config.SSHConfig
	log  zerolog.Logger

	// run executes one remote command; replaced in tests.
	run func(command string) (stdout, stderr string, exitCode int, err error)
}

func NewClient(host string, cfg config.SSHConfig, log zerolog.Logger) *Client {
	c := &Client{
		host: host,
		cfg:  cfg,
		log:  log.With().Str("host", host).Logger(),
	}
	c.run = c.dialAndRun
	return c
}

// dialAndRun executes one remote command over a fresh authenticated
// session. A non-zero remote exit is reported via exitCode with a nil
// error; err is reserved for transport-level failures (dial, auth,
// session) where no exit status exists.
func (c *Client) dialAndRun(command string) (stdout, stderr string, exitCode int, err error) {
	clientCfg := &ssh.ClientConfig{
		User: c.cfg.Username,
		Auth: []ssh.AuthMethod{ssh.Password(c.cfg.Password)},
		// Fleet machines are provisioned without distributing host keys.
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         c.cfg.Timeout(),
	}
	addr := net.JoinHostPort(c.host, strconv.Itoa(c.cfg.Port))

	conn, err := ssh.Dial("tcp", addr, clientCfg)
	if err != nil {
		return "", "", 0, fmt.Errorf("connect to %s: %w", addr, err)
	}
	defer conn.Close()

	sess, err := conn.NewSession()
	if err != nil {
		return "", "", 0, fmt.Errorf("open session on %s: %w", addr, err)
	}
	defer sess.Close()

	var outBuf, errBuf bytes.Buffer
	sess.Stdout = &outBuf
	sess.Stderr = &errBuf

	if runErr := sess.Run(command); runErr != nil {
		var exitErr *ssh.ExitError
		if errors.As(runErr, &exitErr) {
			return outBuf.String(), errBuf.String(), exitErr.ExitStatus(), nil
		}
		return outBuf.String(), errBuf.String(), 0, fmt.Errorf("run on %s: %w", addr, runErr)
	}
	return outBuf.String(), errBuf.String(), 0, nil
}

// runEscalated applies the fixed two-attempt policy: the command is run at
// normal privilege and, on a non-zero exit, retried once escalated. It
// reports the more informative diagnostic when both attempts fail.
func (c *Client) runEscalated(command string) (bool, string) {
	stdout, stderr, code, err := c.run(command)
	if err != nil {
		return false, fmt.Sprintf("connection error: %v", err)
	}
	if code == 0 {
		return true, ""
	}
	firstDiag := pickDiagnostic(stdout, stderr)

	c.log.Debug().Int("exit", code).Msg("command refused, retrying escalated")
	stdout, stderr, code, err = c.run(escalate(command))
	if err != nil {
		return false, fmt.Sprintf("connection error: %v", err)
	}
	if code == 0 {
		return true, ""
	}
	return false, pickDiagnostic(firstDiag, pickDiagnostic(stdout, stderr))
}

// FetchStatus queries the agent for the target user's current state.
//
// valid=false with a nil error means the target is confirmed not to have
// this account configured. Transport failures and unclassified non-zero
// exits come back as err instead, so an offline machine is never conflated
// with an unmanaged account.
func (c *Client) FetchStatus(user string) (valid bool, message string, report map[string]any, err error) {
	stdout, stderr, code, err := c.run(statusCommand(user))
	if err != nil {
		return false, "", nil, err
	}

	switch kind, diag := classifyStatus(c.host, user, stdout, stderr, code); kind {
	case statusNotManaged:
		return false, diag, nil, nil
	case statusTransient:
		return false, "", nil, errors.New(diag)
	}

	return true, stdout, ParseReport(stdout), nil
}

// AdjustTime applies a signed delta to the user's remaining time today.
// op must be exactly "+" or "-"; anything else is a caller contract
// violation and is rejected before any network call.
func (c *Client) AdjustTime(user, op string, seconds int) (bool, string) {
	if op != "+" && op != "-" {
		return false, fmt.Sprintf("invalid operation %q: must be \"+\" or \"-\"", op)
	}

	_, stderr, code, err := c.run(adjustTimeCommand(user, op, seconds))
	if err != nil {
		return false, fmt.Sprintf("connection error: %v", err)
	}
	if code != 0 {
		return false, fmt.Sprintf("error modifying time: %s", strings.TrimSpace(stderr))
	}
	return true, fmt.Sprintf("modified time for %s: %s%d seconds", user, op, seconds)
}

// PushWeeklyQuota converges the per-weekday budgets in two phases: the set
// of allowed weekdays first, then the second counts in the same order.
// Weekdays with a zero budget are disabled by omission. With no non-zero
// day there is nothing the agent could accept, so the push fails fast.
func (c *Client) PushWeeklyQuota(user string, seconds [7]int) (bool, string) {
	var days, limits []int
	for i, s := range seconds {
		if s > 0 {
			days = append(days, i+1) // ISO weekday
			limits = append(limits, s)
		}
	}
	if len(days) == 0 {
		return false, "no weekday has a nonzero quota, nothing to push"
	}

	if ok, diag := c.runEscalated(allowedDaysCommand(user, days)); !ok {
		return false, fmt.Sprintf("setting allowed days failed: %s", diag)
	}
	if ok, diag := c.runEscalated(timeLimitsCommand(user, limits)); !ok {
		return false, fmt.Sprintf("setting time limits failed: %s", diag)
	}
	return true, fmt.Sprintf("pushed weekly quota for %s (%d days)", user, len(days))
}

// PushDailyWindows pushes all seven access windows independently; one
// day's failure does not abort the rest, since partial convergence beats
// leaving a target fully unmanaged on a transient failure. Disabled or
// invalid windows degrade to the full 24-hour enumeration so the weekly
// quota stays the sole limiting factor. ok is false only when every day
// failed.
func (c *Client) PushDailyWindows(user string, windows [7]model.DayWindow) (ok bool, succeeded int, message string) {
	var failures []string
	for i, w := range windows {
		weekday := i + 1
		tokens, restricted := EncodeHours(w)
		if !restricted {
			tokens = AllHours()
		}
		if pushed, diag := c.runEscalated(allowedHoursCommand(user, weekday, tokens)); pushed {
			succeeded++
		} else {
			failures = append(failures, fmt.Sprintf("day %d: %s", weekday, diag))
		}
	}

	if len(failures) == 0 {
		return true, succeeded, fmt.Sprintf("pushed access windows for %s (7/7 days)", user)
	}
	msg := fmt.Sprintf("pushed %d/7 days; failures: %s", succeeded, strings.Join(failures, "; "))
	return succeeded > 0, succeeded, msg
}
