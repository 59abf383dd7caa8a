//go:build !linux

package platform

import (
	"os/exec"
	"runtime"
)

// Detect returns what can be known without sysfs. PURR is never available.
func Detect(_ string, thread int) Info {
	info := Info{
		Machine:    runtime.GOARCH,
		NumCPU:     runtime.NumCPU(),
		PURRThread: thread,
	}
	info.PPC64CPUPath, _ = exec.LookPath("ppc64_cpu")
	return info
}
