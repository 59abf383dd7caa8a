package reconcile

import (
	"golang.org/x/exp/constraints"

	"github.com/nhdewitt/purrtb/internal/sampler"
	"github.com/nhdewitt/purrtb/internal/topology"
)

// TimebaseHz is the Power timebase frequency in ticks per second.
const TimebaseHz uint64 = 512_000_000

// CoreDelta compares one core's summed register increments against the
// timebase ticks elapsed over the same round.
type CoreDelta struct {
	Core    int
	Members []topology.ThreadID
	Ticks   int64
	Delta   uint64

	// ClockStepped is set when the wall clock went backwards during the
	// round. Ticks is then negative.
	ClockStepped bool

	// Regressed lists members whose after value was below their before
	// value. Their increment wrapped; Delta still includes it.
	Regressed []topology.ThreadID
}

// Ticks converts a round's whole-second length to timebase ticks. A round
// whose end precedes its start yields a negative count.
func Ticks(r sampler.Round, hz uint64) int64 {
	return r.Elapsed() * int64(hz)
}

// Reconcile produces one CoreDelta per core, in core order. Only online
// members count; a core with no online members reports zero. Snapshots
// are read, never modified.
func Reconcile(r sampler.Round, topo topology.Topology, hz uint64) []CoreDelta {
	ticks := Ticks(r, hz)
	deltas := make([]CoreDelta, 0, len(topo.Cores))

	for _, core := range topo.Cores {
		d := CoreDelta{
			Core:    core.ID,
			Members: topo.OnlineMembers(core),
			Ticks:   ticks,

			ClockStepped: r.End < r.Start,
		}

		for _, t := range d.Members {
			inc, ok := increment(r.Before[t], r.After[t])
			if !ok {
				d.Regressed = append(d.Regressed, t)
			}
			d.Delta += inc
		}

		deltas = append(deltas, d)
	}

	return deltas
}

// increment returns after-before with unsigned wraparound and whether the
// counter moved forward.
func increment[T constraints.Unsigned](before, after T) (T, bool) {
	return after - before, after >= before
}
