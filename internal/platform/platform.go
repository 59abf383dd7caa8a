package platform

import (
	"fmt"
	"strings"
)

// Info describes the host as far as PURR sampling is concerned.
type Info struct {
	// Kernel/OS
	Machine string // uname -m

	// Hardware
	NumCPU      int
	OnlineCPUs  int // sysconf(_SC_NPROCESSORS_ONLN), 0 if unknown
	PresentCPUs int // /sys/devices/system/cpu/present, 0 if unknown
	HasPURR     bool
	PURRThread  int // thread whose purr file was checked

	// Tools
	PPC64CPUPath string
}

// IsPower reports whether the kernel runs on a 64-bit Power machine.
func (i Info) IsPower() bool {
	return strings.HasPrefix(i.Machine, "ppc64")
}

// Warnings lists conditions under which the sampling results are unlikely
// to be meaningful. onlineThreads is the number of threads found in cpuinfo.
func (i Info) Warnings(onlineThreads int) []string {
	var w []string

	if i.Machine != "" && !i.IsPower() {
		w = append(w, fmt.Sprintf("machine %q is not ppc64; PURR and the 512MHz timebase are Power-specific", i.Machine))
	}
	if !i.HasPURR {
		w = append(w, fmt.Sprintf("no purr file for cpu%d; counter reads will fail", i.PURRThread))
	}
	if i.PPC64CPUPath == "" {
		w = append(w, "ppc64_cpu not found in PATH")
	}
	if i.OnlineCPUs > 0 && onlineThreads != i.OnlineCPUs {
		w = append(w, fmt.Sprintf("cpuinfo lists %d threads but %d are online", onlineThreads, i.OnlineCPUs))
	}
	if i.PresentCPUs > 0 && i.OnlineCPUs > i.PresentCPUs {
		w = append(w, fmt.Sprintf("%d threads online but only %d present", i.OnlineCPUs, i.PresentCPUs))
	}

	return w
}
