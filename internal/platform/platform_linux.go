//go:build linux

package platform

import (
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"

	"github.com/tklauser/go-sysconf"
	"github.com/tklauser/numcpus"
	"golang.org/x/sys/unix"
)

// Detect probes the host. sysfsRoot is the cpu directory holding cpuN/purr;
// thread is the online thread whose purr file is checked, since cpu0 may be
// offline.
func Detect(sysfsRoot string, thread int) Info {
	info := Info{
		NumCPU:     runtime.NumCPU(),
		PURRThread: thread,
	}

	info.Machine = detectMachine()
	if n, err := sysconf.Sysconf(sysconf.SC_NPROCESSORS_ONLN); err == nil && n > 0 {
		info.OnlineCPUs = int(n)
	}
	if n, err := numcpus.GetPresent(); err == nil && n > 0 {
		info.PresentCPUs = n
	}
	info.HasPURR = fileExists(filepath.Join(sysfsRoot, "cpu"+strconv.Itoa(thread), "purr"))
	info.PPC64CPUPath, _ = exec.LookPath("ppc64_cpu")

	return info
}

func detectMachine() string {
	var uts unix.Utsname
	if err := unix.Uname(&uts); err != nil {
		return ""
	}
	return unix.ByteSliceToString(uts.Machine[:])
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
