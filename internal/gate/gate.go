// Package gate filters trigger events and dispatches them to the cycle
// engine.
//
// Start and open-back-door triggers are accepted only for the local
// facility and only while the engine is idle; the accepted cycle runs on
// its own goroutine so event delivery never waits on a door. Abort is
// evaluated against the running cycle and handled inline.
package gate

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alfredjeanlab/o3gate/internal/events"
	"github.com/alfredjeanlab/o3gate/internal/metrics"
	"github.com/alfredjeanlab/o3gate/internal/model"
)

// Engine is the part of the cycle engine the gate drives.
type Engine interface {
	TryClaim() bool
	InProcess() bool
	RequestAbort() bool
	RunO3Process(ctx context.Context) model.Outcome
	RunBackDoor(ctx context.Context) model.Outcome
}

// Decision is what the gate did with a trigger.
type Decision string

const (
	DecisionAccepted      Decision = "accepted"
	DecisionWrongFacility Decision = "dropped_facility"
	DecisionBusy          Decision = "dropped_busy"
	DecisionIdle          Decision = "dropped_idle"
	DecisionDisabled      Decision = "dropped_disabled"
	DecisionUnknownAction Decision = "dropped_unknown"
	DecisionShuttingDown  Decision = "dropped_shutdown"
)

// Accepted reports whether the trigger was acted upon.
func (d Decision) Accepted() bool {
	return d == DecisionAccepted
}

// Config configures a Gate.
type Config struct {
	// FacilityID is the local facility; events for any other are dropped.
	FacilityID int

	// Actions lists the actions this gate honours. Nil enables all of them.
	// A deployment without a back door release button can, for example,
	// leave out ActionOpenBackDoor.
	Actions []model.Action

	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// Gate is the event gate in front of the cycle engine.
type Gate struct {
	engine  Engine
	cfg     Config
	logger  *slog.Logger
	metrics *metrics.Metrics
	enabled map[model.Action]bool

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	closed  bool
	workers sync.WaitGroup
}

// New creates a gate in front of engine.
func New(engine Engine, cfg Config) *Gate {
	ctx, cancel := context.WithCancel(context.Background())
	g := &Gate{
		engine:  engine,
		cfg:     cfg,
		logger:  cfg.Logger,
		metrics: cfg.Metrics,
		ctx:     ctx,
		cancel:  cancel,
	}
	if g.logger == nil {
		g.logger = slog.Default()
	}
	if cfg.Actions != nil {
		g.enabled = make(map[model.Action]bool, len(cfg.Actions))
		for _, a := range cfg.Actions {
			g.enabled[a] = true
		}
	}
	return g
}

// OnTrigger filters one event and dispatches it. It never blocks on a
// cycle.
func (g *Gate) OnTrigger(ev model.TriggerEvent) Decision {
	d := g.decide(ev)
	g.metrics.Trigger(ev.Action, string(d))
	if d.Accepted() {
		g.logger.Info("gate: trigger accepted", "action", ev.Action, "facility_id", ev.FacilityID)
	} else {
		g.logger.Debug("gate: trigger dropped", "action", ev.Action, "facility_id", ev.FacilityID, "decision", d)
	}
	return d
}

func (g *Gate) decide(ev model.TriggerEvent) Decision {
	if ev.FacilityID != g.cfg.FacilityID {
		return DecisionWrongFacility
	}
	if !ev.Action.IsValid() {
		return DecisionUnknownAction
	}
	if g.enabled != nil && !g.enabled[ev.Action] {
		return DecisionDisabled
	}

	switch ev.Action {
	case model.ActionAbort:
		if !g.engine.RequestAbort() {
			return DecisionIdle
		}
		return DecisionAccepted
	case model.ActionStartProcess:
		return g.dispatch(ev.Action, g.engine.RunO3Process)
	case model.ActionOpenBackDoor:
		return g.dispatch(ev.Action, g.engine.RunBackDoor)
	}
	return DecisionUnknownAction
}

// dispatch claims the engine and runs the cycle on a new goroutine. The
// idle check and the claim are one atomic step, so two triggers racing on
// different delivery goroutines cannot both start a cycle.
func (g *Gate) dispatch(action model.Action, run func(context.Context) model.Outcome) Decision {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return DecisionShuttingDown
	}
	if !g.engine.TryClaim() {
		return DecisionBusy
	}

	g.workers.Add(1)
	go func() {
		defer g.workers.Done()
		outcome := run(g.ctx)
		g.logger.Info("gate: cycle ended", "action", action, "outcome", outcome)
	}()
	return DecisionAccepted
}

// InProcess reports whether a cycle is currently running.
func (g *Gate) InProcess() bool {
	return g.engine.InProcess()
}

// StartSubscriber listens for trigger payloads on the event bus and feeds
// them through OnTrigger. It blocks until ctx is cancelled or the
// subscription channel closes.
func (g *Gate) StartSubscriber(ctx context.Context, sub events.Subscriber, topic string) error {
	ch, cancel, err := sub.Subscribe(topic)
	if err != nil {
		return fmt.Errorf("gate: subscribe: %w", err)
	}
	defer cancel()

	g.logger.Info("gate: subscriber started", "topic", topic)

	for {
		select {
		case <-ctx.Done():
			g.logger.Info("gate: subscriber stopping")
			return nil
		case raw, ok := <-ch:
			if !ok {
				g.logger.Info("gate: subscription channel closed")
				return nil
			}

			ev, err := model.DecodeTrigger(raw)
			if err != nil {
				g.logger.Warn("gate: bad trigger payload", "err", err)
				continue
			}
			g.OnTrigger(ev)
		}
	}
}

// Shutdown stops accepting cycles, aborts the running one and waits for it
// to close its doors. If ctx expires first the cycle context is cancelled
// as well and Shutdown returns ctx's error once the worker has exited or
// the grace period below runs out.
func (g *Gate) Shutdown(ctx context.Context) error {
	g.mu.Lock()
	g.closed = true
	g.mu.Unlock()

	if g.engine.RequestAbort() {
		g.logger.Info("gate: aborting running cycle for shutdown")
	}

	done := make(chan struct{})
	go func() {
		g.workers.Wait()
		close(done)
	}()

	select {
	case <-done:
		g.cancel()
		return nil
	case <-ctx.Done():
		g.cancel()
		select {
		case <-done:
		case <-time.After(time.Second):
		}
		return ctx.Err()
	}
}
