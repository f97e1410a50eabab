package core

import (
	"context"
	"fmt"
	"time"

	"github.com/signalsfoundry/leo-topology/internal/logging"
	"github.com/signalsfoundry/leo-topology/timectrl"
)

// SimulationEngine drives a topology from a TimeController: simulated time
// advances tick by tick and UpdateLinks runs every UpdateInterval.
type SimulationEngine struct {
	Topology       *ConstellationTopology
	Clock          *timectrl.TimeController
	UpdateInterval time.Duration

	log           logging.Logger
	ctx           context.Context
	lastUpdate    time.Duration
	updates       int
	tickListeners []func(simTime time.Duration)
}

// NewSimulationEngine wires topology updates onto the controller. The
// topology must have been built with the same controller as its clock.
func NewSimulationEngine(topo *ConstellationTopology, clock *timectrl.TimeController, interval time.Duration, log logging.Logger) (*SimulationEngine, error) {
	if topo == nil || clock == nil {
		return nil, fmt.Errorf("simulation engine needs a topology and a clock")
	}
	if interval <= 0 {
		return nil, fmt.Errorf("update interval must be positive, got %s", interval)
	}
	if log == nil {
		log = logging.Noop()
	}

	se := &SimulationEngine{
		Topology:       topo,
		Clock:          clock,
		UpdateInterval: interval,
		log:            log,
		lastUpdate:     topo.SimTime(),
	}
	clock.AddListener(se.onTick)
	return se, nil
}

// RegisterTickListener adds a callback run after every tick.
func (se *SimulationEngine) RegisterTickListener(fn func(simTime time.Duration)) {
	se.tickListeners = append(se.tickListeners, fn)
}

// Updates returns how many times UpdateLinks has run.
func (se *SimulationEngine) Updates() int { return se.updates }

// Run advances the simulation for duration of simulated time.
func (se *SimulationEngine) Run(ctx context.Context, duration time.Duration) error {
	se.ctx = ctx
	se.log.Info(ctx, "simulation starting",
		logging.Duration("duration", duration),
		logging.Duration("tick", se.Clock.Tick),
		logging.Duration("update_interval", se.UpdateInterval),
		logging.String("mode", se.Clock.Mode.String()),
	)
	if err := se.Clock.Run(ctx, duration); err != nil {
		return err
	}
	se.log.Info(ctx, "simulation complete",
		logging.Int("updates", se.updates),
		logging.Duration("sim_time", se.Topology.SimTime()),
	)
	return nil
}

func (se *SimulationEngine) onTick(time.Time) error {
	now := se.Topology.SimTime()
	if now-se.lastUpdate >= se.UpdateInterval {
		ctx := se.ctx
		if ctx == nil {
			ctx = context.Background()
		}
		if err := se.Topology.UpdateLinks(ctx); err != nil {
			return fmt.Errorf("update links at %s: %w", now, err)
		}
		se.lastUpdate = now
		se.updates++
	}
	for _, fn := range se.tickListeners {
		fn(now)
	}
	return nil
}
