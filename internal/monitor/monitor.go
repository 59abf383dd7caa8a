package monitor

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/google/uuid"

	"github.com/nhdewitt/purrtb/internal/config"
	"github.com/nhdewitt/purrtb/internal/counter"
	"github.com/nhdewitt/purrtb/internal/platform"
	"github.com/nhdewitt/purrtb/internal/reconcile"
	"github.com/nhdewitt/purrtb/internal/report"
	"github.com/nhdewitt/purrtb/internal/sampler"
	"github.com/nhdewitt/purrtb/internal/topology"
)

// Deps are the collaborators a Monitor talks to. Zero fields are filled
// from the Config by New.
type Deps struct {
	Logger   *slog.Logger
	Out      io.Writer
	CPUInfo  func() (io.ReadCloser, error)
	Topology topology.Source
	Sampler  *sampler.Sampler
	Platform func(thread int) platform.Info
}

// Monitor runs the fixed number of sampling rounds described by a Config.
type Monitor struct {
	cfg  config.Config
	deps Deps
	log  *slog.Logger
}

func New(cfg config.Config, deps Deps) *Monitor {
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.DiscardHandler)
	}
	if deps.Out == nil {
		deps.Out = io.Discard
	}
	if deps.CPUInfo == nil {
		path := cfg.CPUInfo
		deps.CPUInfo = func() (io.ReadCloser, error) {
			f, err := topology.OpenCPUInfo(path)
			if err != nil {
				return nil, err
			}
			return f, nil
		}
	}
	if deps.Topology == nil {
		deps.Topology = topologySource(cfg)
	}
	if deps.Sampler == nil {
		deps.Sampler = sampler.New(counter.NewSysfsReader(cfg.SysfsRoot))
	}
	if deps.Platform == nil {
		root := cfg.SysfsRoot
		deps.Platform = func(thread int) platform.Info { return platform.Detect(root, thread) }
	}

	return &Monitor{
		cfg:  cfg,
		deps: deps,
		log:  deps.Logger.With("run", uuid.NewString()),
	}
}

func topologySource(cfg config.Config) topology.Source {
	if cfg.TopologyFile != "" {
		return topology.FileSource(cfg.TopologyFile)
	}
	src := topology.DefaultCommand()
	src.Path = cfg.TopologyCommand[0]
	src.Args = cfg.TopologyCommand[1:]
	return src
}

// Discover reads the thread and core layout once.
func (m *Monitor) Discover(ctx context.Context) (topology.Topology, error) {
	f, err := m.deps.CPUInfo()
	if err != nil {
		return topology.Topology{}, err
	}
	defer f.Close()

	return topology.Discover(ctx, f, m.deps.Topology)
}

// Run discovers the topology, prints the banner and then the configured
// number of rounds. The first error ends the run; there is no retry.
func (m *Monitor) Run(ctx context.Context) error {
	topo, err := m.Discover(ctx)
	if err != nil {
		return err
	}

	m.log.Info("topology discovered",
		"online_threads", len(topo.Online),
		"active_cores", len(topo.Cores))

	first := 0
	if len(topo.Online) > 0 {
		first = int(topo.Online[0])
	}
	info := m.deps.Platform(first)
	for _, w := range info.Warnings(len(topo.Online)) {
		m.log.Warn(w, "machine", info.Machine)
	}
	if len(topo.Cores) == 0 {
		m.log.Warn("no active cores reported; nothing will be printed")
	}

	out := report.New(m.deps.Out)
	if err := out.PrintBanner(topo); err != nil {
		return fmt.Errorf("writing banner: %w", err)
	}

	interval := m.cfg.IntervalDuration()
	for i := range m.cfg.Samples {
		round, err := m.deps.Sampler.RunRound(topo.Online, interval)
		if err != nil {
			return fmt.Errorf("round %d: %w", i, err)
		}

		deltas := reconcile.Reconcile(round, topo, m.cfg.TimebaseHz)
		m.logRound(i, round, deltas)

		if err := out.PrintRound(deltas); err != nil {
			return fmt.Errorf("writing round %d: %w", i, err)
		}
	}

	return nil
}

func (m *Monitor) logRound(i int, round sampler.Round, deltas []reconcile.CoreDelta) {
	m.log.Debug("round complete", "round", i, "start", round.Start, "end", round.End, "elapsed", round.Elapsed())

	if len(deltas) > 0 && deltas[0].ClockStepped {
		m.log.Warn("wall clock went backwards; tick estimate is negative",
			"round", i,
			"start", round.Start,
			"end", round.End)
	}

	for _, d := range deltas {
		if len(d.Regressed) == 0 {
			continue
		}
		m.log.Warn("purr went backwards; delta wrapped",
			"round", i,
			"core", d.Core,
			"threads", d.Regressed)
	}
}
