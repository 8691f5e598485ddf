// Package command dispatches named robot commands over the active backend
// and classifies the textual replies. Robot firmware responses are loosely
// structured, so classification is heuristic: a leading numeric status code
// decides when present, explicit error words decide otherwise.
package command

import (
	"regexp"
	"strconv"
	"strings"
)

// Result is the classified outcome of one command exchange
type Result struct {
	// Success is the verdict of the classification heuristic
	Success bool

	// Message is a human-readable summary of the outcome
	Message string

	// Raw is the unmodified response text
	Raw string

	// ErrorCode is the leading numeric status when the response carried one.
	// Only meaningful when HasCode is true.
	ErrorCode int

	// HasCode reports whether a numeric status was found
	HasCode bool

	// Payload is the brace-delimited value some commands embed in their
	// reply, e.g. the mode number in "0,{5},RobotMode();"
	Payload string

	// Malformed reports a reply that carried no classifiable content
	Malformed bool
}

var (
	statusPattern  = regexp.MustCompile(`^(-?\d+)\s*(?:,|$)`)
	payloadPattern = regexp.MustCompile(`\{([^}]*)\}`)
)

// classify applies the response heuristic. Dashboard replies follow the
// "code,rest" convention and echo the command name, so a reply shaped that
// way is judged by its leading status code alone; "0,{},ClearError();" is a
// success even though the echoed name contains "Error". Replies without a
// leading code fall back to an error-word scan, and replies with neither
// signal are assumed successful. An empty reply is a malformed failure.
func classify(raw string) Result {
	r := Result{Raw: raw}

	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		r.Malformed = true
		r.Message = "empty response"
		return r
	}

	if m := payloadPattern.FindStringSubmatch(trimmed); m != nil {
		r.Payload = strings.TrimSpace(m[1])
	}

	if m := statusPattern.FindStringSubmatch(trimmed); m != nil {
		code, err := strconv.Atoi(m[1])
		if err == nil {
			r.HasCode = true
			r.ErrorCode = code
			if code != 0 {
				r.Message = "command rejected with code " + m[1]
				return r
			}
			r.Success = true
			r.Message = "ok"
			return r
		}
	}

	lower := strings.ToLower(trimmed)
	if strings.Contains(lower, "error") || strings.Contains(lower, "fail") {
		r.Message = "response reported an error: " + trimmed
		return r
	}

	// No recognizable status signal either way. Trust the robot.
	r.Success = true
	r.Message = "ok (no status code)"
	return r
}
