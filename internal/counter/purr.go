package counter

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/nhdewitt/purrtb/internal/topology"
)

// DefaultRoot is where the kernel exposes per-thread PURR files.
const DefaultRoot = "/sys/devices/system/cpu"

// Reader returns the current register value of a hardware thread.
type Reader interface {
	Read(thread topology.ThreadID) (uint64, error)
}

// ReadError reports a missing, unreadable or unparsable counter file.
type ReadError struct {
	Thread topology.ThreadID
	Path   string
	Err    error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("reading purr for cpu%d (%s): %v", e.Thread, e.Path, e.Err)
}

func (e *ReadError) Unwrap() error { return e.Err }

// SysfsReader reads <Root>/cpuN/purr. Every call hits the file; nothing
// is cached. The register is assumed not to wrap within a boot.
type SysfsReader struct {
	Root string
}

func NewSysfsReader(root string) SysfsReader {
	if root == "" {
		root = DefaultRoot
	}
	return SysfsReader{Root: root}
}

// Path returns the counter file for thread.
func (r SysfsReader) Path(thread topology.ThreadID) string {
	return filepath.Join(r.Root, "cpu"+strconv.Itoa(int(thread)), "purr")
}

func (r SysfsReader) Read(thread topology.ThreadID) (uint64, error) {
	path := r.Path(thread)

	data, err := os.ReadFile(path)
	if err != nil {
		return 0, &ReadError{Thread: thread, Path: path, Err: err}
	}

	v, err := ParseValue(string(data))
	if err != nil {
		return 0, &ReadError{Thread: thread, Path: path, Err: err}
	}
	return v, nil
}

var errEmpty = errors.New("empty counter value")

// ParseValue parses the first line of a counter file as base 16.
func ParseValue(s string) (uint64, error) {
	line, _, _ := strings.Cut(s, "\n")
	line = strings.TrimSpace(line)
	if line == "" {
		return 0, errEmpty
	}

	line = strings.TrimPrefix(strings.TrimPrefix(line, "0x"), "0X")
	return strconv.ParseUint(line, 16, 64)
}
