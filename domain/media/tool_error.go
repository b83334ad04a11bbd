package media

import (
	"fmt"
	"strings"
)

// ToolError reports a media tool invocation that exited non-zero or could not start
type ToolError struct {
	Tool     string
	Args     []string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *ToolError) Error() string {
	if e == nil {
		return ""
	}
	msg := fmt.Sprintf("%s exited with status %d", e.Tool, e.ExitCode)
	if e.ExitCode < 0 && e.Err != nil {
		msg = fmt.Sprintf("%s failed: %v", e.Tool, e.Err)
	}
	if tail := lastLine(e.Stderr); tail != "" {
		msg += ": " + tail
	}
	return msg
}

// Unwrap exposes the underlying exec error
func (e *ToolError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	return strings.TrimSpace(s)
}
