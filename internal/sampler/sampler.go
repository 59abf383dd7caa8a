package sampler

import (
	"fmt"
	"time"

	"github.com/nhdewitt/purrtb/internal/counter"
	"github.com/nhdewitt/purrtb/internal/topology"
)

// Snapshot maps each online thread to its register value at one instant.
type Snapshot map[topology.ThreadID]uint64

// Round is one before/sleep/after cycle. Start and End are whole Unix
// seconds, so sub-second drift in the sleep shows up as rounding.
type Round struct {
	Start  int64
	End    int64
	Before Snapshot
	After  Snapshot
}

// Elapsed returns the round length in whole seconds.
func (r Round) Elapsed() int64 {
	return r.End - r.Start
}

// Clock is the wall-clock source for round boundaries.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Sampler takes counter snapshots around a blocking sleep.
type Sampler struct {
	Reader counter.Reader
	Clock  Clock
	Sleep  func(time.Duration)
}

func New(r counter.Reader) *Sampler {
	return &Sampler{
		Reader: r,
		Clock:  systemClock{},
		Sleep:  time.Sleep,
	}
}

// RunRound reads every thread, sleeps for interval, and reads every
// thread again. Reads are issued one after another in the order given, so
// a snapshot is not an atomic capture across threads. The sleep cannot be
// interrupted; nothing else runs while the counters are being measured.
func (s *Sampler) RunRound(threads []topology.ThreadID, interval time.Duration) (Round, error) {
	var round Round

	round.Start = s.Clock.Now().Unix()
	before, err := s.snapshot(threads)
	if err != nil {
		return Round{}, fmt.Errorf("before snapshot: %w", err)
	}
	round.Before = before

	s.Sleep(interval)

	round.End = s.Clock.Now().Unix()
	after, err := s.snapshot(threads)
	if err != nil {
		return Round{}, fmt.Errorf("after snapshot: %w", err)
	}
	round.After = after

	return round, nil
}

func (s *Sampler) snapshot(threads []topology.ThreadID) (Snapshot, error) {
	snap := make(Snapshot, len(threads))
	for _, t := range threads {
		v, err := s.Reader.Read(t)
		if err != nil {
			return nil, err
		}
		snap[t] = v
	}
	return snap, nil
}
