//go:build linux

package sandbox

import (
	"os/exec"
	"syscall"
)

// applyIsolation restricts the child's namespaces on Linux: a fresh
// network namespace when networking is blocked (leaving it with only a
// loopback interface, no route to the host network) and a fresh mount
// namespace, always. No bind mounts are set up for AllowedPaths. This
// requires CAP_SYS_ADMIN (or an unprivileged user namespace,
// which we don't attempt to set up here); without it, Start fails with a
// permission error that Execute reports as a plain execution error rather
// than a security violation — the screen already rejected the scripts we
// know are hostile, this is defense in depth for the rest.
func applyIsolation(cmd *exec.Cmd, blockNetwork bool) {
	attr := &syscall.SysProcAttr{}
	var flags uintptr
	if blockNetwork {
		flags |= syscall.CLONE_NEWNET
	}
	flags |= syscall.CLONE_NEWNS
	attr.Cloneflags = flags
	cmd.SysProcAttr = attr
}
