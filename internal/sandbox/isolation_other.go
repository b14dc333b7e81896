//go:build !linux

package sandbox

import "os/exec"

// applyIsolation is a no-op outside Linux: namespace isolation has no
// portable equivalent, so on other platforms the static denial screen and
// the wall-clock timeout are the only enforced boundaries.
func applyIsolation(cmd *exec.Cmd, blockNetwork bool) {}
