//go:build windows

package playback

import (
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
)

// The PowerShell query filters to the target executables on the remote side
// so we never ship the whole process table across the pipe.
const listProcessesScript = `
[Console]::OutputEncoding = [System.Text.Encoding]::UTF8
$targets = @('mpv.exe','mpvnet.exe','mpc-hc.exe','mpc-hc64.exe','mpc-be.exe','mpc-be64.exe')
$processes = Get-CimInstance Win32_Process |
Where-Object { $targets -contains $_.Name.ToLower() } |
Select-Object ProcessId, Name, CommandLine

if ($null -eq $processes) {
  '[]'
} else {
  @($processes) | ConvertTo-Json -Compress
}
`

type windowsProcess struct {
	ProcessID   uint32  `json:"ProcessId"`
	Name        string  `json:"Name"`
	CommandLine *string `json:"CommandLine"`
}

func listProcesses() ([]ProcessSnapshot, error) {
	output, err := exec.Command("powershell", "-NoProfile", "-Command", listProcessesScript).Output()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return nil, fmt.Errorf("failed to list running processes: %s", string(exitErr.Stderr))
		}
		return nil, fmt.Errorf("failed to list running processes: %w", err)
	}

	payload := strings.TrimSpace(string(output))
	if payload == "" {
		return nil, nil
	}

	parsed, err := parseWindowsProcessOutput(payload)
	if err != nil {
		return nil, err
	}

	snapshots := make([]ProcessSnapshot, 0, len(parsed))
	for _, process := range parsed {
		commandLine := ""
		if process.CommandLine != nil {
			commandLine = *process.CommandLine
		}
		snapshots = append(snapshots, ProcessSnapshot{
			PID:         process.ProcessID,
			Name:        process.Name,
			CommandLine: commandLine,
			Args:        splitCommandLine(commandLine),
		})
	}

	return snapshots, nil
}

// parseWindowsProcessOutput accepts the three shapes ConvertTo-Json produces:
// an array, a single object, or null.
func parseWindowsProcessOutput(payload string) ([]windowsProcess, error) {
	var value json.RawMessage
	if err := json.Unmarshal([]byte(payload), &value); err != nil {
		return nil, fmt.Errorf("invalid process output JSON: %w", err)
	}

	trimmed := strings.TrimSpace(string(value))
	switch {
	case trimmed == "null":
		return nil, nil
	case strings.HasPrefix(trimmed, "["):
		var processes []windowsProcess
		if err := json.Unmarshal(value, &processes); err != nil {
			return nil, fmt.Errorf("invalid process output JSON: %w", err)
		}
		return processes, nil
	case strings.HasPrefix(trimmed, "{"):
		var single windowsProcess
		if err := json.Unmarshal(value, &single); err != nil {
			return nil, fmt.Errorf("invalid process output JSON: %w", err)
		}
		return []windowsProcess{single}, nil
	default:
		return nil, fmt.Errorf("unexpected process output format")
	}
}
