//go:build !linux

package sandbox

// watchMemory is a no-op outside Linux: /proc doesn't exist, so the
// memory limit becomes advisory-only there, same as max_cpu_percent
// everywhere.
func watchMemory(pid int, maxBytes int64, onExceed func()) (stop func()) {
	return func() {}
}
