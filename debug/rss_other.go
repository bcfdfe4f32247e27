//go:build !linux && !freebsd && !netbsd && !openbsd && !darwin && !windows

package debug

func peakRSS() (uint64, bool) { return 0, false }
