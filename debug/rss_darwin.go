//go:build darwin

package debug

import "golang.org/x/sys/unix"

// peakRSS returns the peak resident set size of the process in bytes.
func peakRSS() (uint64, bool) {
	var ru unix.Rusage
	if err := unix.Getrusage(unix.RUSAGE_SELF, &ru); err != nil {
		return 0, false
	}
	return uint64(ru.Maxrss), true
}
