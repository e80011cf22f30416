//go:build linux && !cgo
// +build linux,!cgo

// File: affinity/affinity_linux_nocgo.go
// Author: momentics <momentics@gmail.com>
//
// Fallback for Linux builds with CGO disabled: the cgo-based implementation
// in affinity_linux.go is excluded from such builds, which would otherwise
// leave setAffinityPlatform undefined.

package affinity

import "fmt"

// setAffinityPlatform reports affinity pinning as unsupported when CGO is
// disabled, matching SetAffinity's documented behavior on unsupported
// platforms.
func setAffinityPlatform(cpuID int) error {
	return fmt.Errorf("affinity: cpu affinity requires cgo, which is disabled")
}
