//go:build linux || freebsd || netbsd || openbsd

package debug

import "golang.org/x/sys/unix"

// peakRSS returns the peak resident set size of the process in bytes.
func peakRSS() (uint64, bool) {
	var ru unix.Rusage
	if err := unix.Getrusage(unix.RUSAGE_SELF, &ru); err != nil {
		return 0, false
	}
	// ru_maxrss is reported in kilobytes on these systems.
	return uint64(ru.Maxrss) * 1024, true
}
