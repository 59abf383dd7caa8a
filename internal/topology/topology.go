package topology

import (
	"context"
	"fmt"
	"io"
	"os"
	"slices"
)

// ThreadID identifies a hardware thread (the N in /sys/devices/system/cpu/cpuN).
type ThreadID int

// Core is an active core as reported by the topology tool. ID is the
// discovery index, not a hardware core id. Threads may include offline
// threads; they are filtered out by OnlineMembers.
type Core struct {
	ID      int
	Threads []ThreadID
}

// Topology is computed once at startup and never mutated afterwards.
type Topology struct {
	Online []ThreadID
	Cores  []Core

	online map[ThreadID]struct{}
}

// New builds a Topology from an online thread list and a core map.
func New(online []ThreadID, cores []Core) Topology {
	set := make(map[ThreadID]struct{}, len(online))
	for _, t := range online {
		set[t] = struct{}{}
	}
	return Topology{
		Online: slices.Clone(online),
		Cores:  slices.Clone(cores),
		online: set,
	}
}

func (t Topology) IsOnline(id ThreadID) bool {
	_, ok := t.online[id]
	return ok
}

// OnlineMembers returns the core's threads that are online, in core order.
func (t Topology) OnlineMembers(c Core) []ThreadID {
	members := make([]ThreadID, 0, len(c.Threads))
	for _, id := range c.Threads {
		if t.IsOnline(id) {
			members = append(members, id)
		}
	}
	return members
}

// Error is returned when the thread or core layout cannot be determined.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("topology: %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Discover reads the online threads from cpuinfo and the active cores from src.
func Discover(ctx context.Context, cpuinfo io.Reader, src Source) (Topology, error) {
	online, err := ParseOnlineThreads(cpuinfo)
	if err != nil {
		return Topology{}, &Error{Op: "parsing online threads", Err: err}
	}

	out, err := src.CoreMap(ctx)
	if err != nil {
		return Topology{}, &Error{Op: "reading core map", Err: err}
	}

	cores, err := ParseCoreMap(out)
	if err != nil {
		return Topology{}, &Error{Op: "parsing core map", Err: err}
	}

	return New(online, cores), nil
}

// OpenCPUInfo opens the thread source, normally /proc/cpuinfo.
func OpenCPUInfo(path string) (*os.File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &Error{Op: "opening " + path, Err: err}
	}
	return f, nil
}
