//go:build !unix

package procgroup

import "os/exec"

func set(_ *exec.Cmd) {}

// only the root process can be killed here
func kill(cmd *exec.Cmd) error {
	return ignoreDone(cmd.Process.Kill())
}
