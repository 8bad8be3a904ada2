//go:build linux

package playback

import (
	"bytes"
	"fmt"
	"os"
	"strconv"
	"strings"
)

func listProcesses() ([]ProcessSnapshot, error) {
	entries, err := os.ReadDir("/proc")
	if err != nil {
		return nil, fmt.Errorf("failed to list /proc entries: %w", err)
	}

	var processes []ProcessSnapshot
	for _, entry := range entries {
		pid, err := strconv.ParseUint(entry.Name(), 10, 32)
		if err != nil {
			continue
		}

		// Processes can exit between ReadDir and here; skip them.
		comm, err := os.ReadFile(fmt.Sprintf("/proc/%d/comm", pid))
		if err != nil {
			continue
		}
		name := strings.TrimSpace(string(comm))

		cmdline, err := os.ReadFile(fmt.Sprintf("/proc/%d/cmdline", pid))
		if err != nil {
			continue
		}
		args := parseCmdline(cmdline)

		commandLine := name
		if len(args) > 0 {
			commandLine = strings.Join(args, " ")
		}

		processes = append(processes, ProcessSnapshot{
			PID:         uint32(pid),
			Name:        name,
			CommandLine: commandLine,
			Args:        args,
		})
	}

	return processes, nil
}

// parseCmdline splits the NUL-separated argv from /proc/<pid>/cmdline.
func parseCmdline(data []byte) []string {
	var args []string
	for _, chunk := range bytes.Split(data, []byte{0}) {
		if len(chunk) == 0 {
			continue
		}
		args = append(args, string(chunk))
	}
	return args
}
