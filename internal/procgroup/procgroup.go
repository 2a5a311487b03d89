// Package procgroup starts analyzer processes in their own process group
// so the whole tree can be killed at once.
package procgroup

import "os/exec"

// Set configures the command to start in a new process group.
// Must be called before cmd.Start.
func Set(cmd *exec.Cmd) {
	set(cmd)
}

// Kill forcibly terminates the process group of cmd. A command which
// was never started or whose group is already gone is not an error.
func Kill(cmd *exec.Cmd) error {
	if cmd == nil || cmd.Process == nil {
		return nil
	}
	return kill(cmd)
}
