//go:build darwin

package playback

import (
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

func listProcesses() ([]ProcessSnapshot, error) {
	output, err := exec.Command("ps", "-axww", "-o", "pid=,comm=,args=").Output()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return nil, fmt.Errorf("failed to list running processes: %s", string(exitErr.Stderr))
		}
		return nil, fmt.Errorf("failed to list running processes: %w", err)
	}

	var processes []ProcessSnapshot
	for _, line := range strings.Split(string(output), "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}

		pidRaw, rest, ok := splitOnWhitespace(trimmed)
		if !ok {
			continue
		}
		pid, err := strconv.ParseUint(pidRaw, 10, 32)
		if err != nil {
			continue
		}

		name, commandLine, ok := splitOnWhitespace(rest)
		if !ok || commandLine == "" {
			commandLine = rest
		}

		processes = append(processes, ProcessSnapshot{
			PID:         uint32(pid),
			Name:        name,
			CommandLine: commandLine,
			Args:        splitCommandLine(commandLine),
		})
	}

	return processes, nil
}

func splitOnWhitespace(value string) (string, string, bool) {
	idx := strings.IndexFunc(value, func(r rune) bool { return r == ' ' || r == '\t' })
	if idx < 0 {
		return value, "", false
	}
	return value[:idx], strings.TrimLeft(value[idx+1:], " \t"), true
}
