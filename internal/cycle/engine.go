// Package cycle implements the door/O3 sequencing state machine.
//
// A full O3 process opens the front door and waits for someone to walk in
// (with an entrance timeout), closes it, floods the passage with O3 for the
// configured flush time, then opens the back door and waits for the exit.
// A forced back door cycle runs only the last step. Every wait is a poll
// loop on the cycle's own goroutine and checks the abort flag at each poll
// point. Whatever ends a cycle, the doors are commanded closed and the valve
// is off before the engine reports idle again.
//
// The engine assumes single entry: mutual exclusion of cycles is the
// caller's job (see TryClaim and the gate package).
package cycle

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/alfredjeanlab/o3gate/internal/events"
	"github.com/alfredjeanlab/o3gate/internal/gpio"
	"github.com/alfredjeanlab/o3gate/internal/idgen"
	"github.com/alfredjeanlab/o3gate/internal/metrics"
	"github.com/alfredjeanlab/o3gate/internal/model"
)

const (
	// DefaultPollInterval is the pause between two sensor reads. It bounds
	// abort latency during door waits.
	DefaultPollInterval = 5 * time.Millisecond

	// DefaultFlushTick bounds abort latency while the valve is open.
	DefaultFlushTick = 100 * time.Millisecond
)

// Config configures an Engine.
type Config struct {
	Cycle      model.CycleConfig
	Pins       model.PinLayout
	FacilityID int

	// PollInterval defaults to DefaultPollInterval.
	PollInterval time.Duration
	// FlushTick defaults to DefaultFlushTick.
	FlushTick time.Duration

	// Optional collaborators. Nil values are replaced with no-op ones.
	Logger    *slog.Logger
	Publisher events.Publisher
	Metrics   *metrics.Metrics
}

// Engine runs door/O3 cycles against a pin driver.
type Engine struct {
	drv       gpio.Driver
	cfg       Config
	logger    *slog.Logger
	publisher events.Publisher
	metrics   *metrics.Metrics

	state State
}

// cycleRun carries the identity of the cycle in flight.
type cycleRun struct {
	id      string
	kind    model.CycleKind
	started time.Time
	logger  *slog.Logger

	// engaged holds every output this cycle has driven. Only the cycle
	// goroutine touches it.
	engaged map[model.Pin]bool
}

// New creates an engine. The driver must already be configured for
// cfg.Pins.
func New(drv gpio.Driver, cfg Config) *Engine {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.FlushTick <= 0 {
		cfg.FlushTick = DefaultFlushTick
	}
	e := &Engine{
		drv:       drv,
		cfg:       cfg,
		logger:    cfg.Logger,
		publisher: cfg.Publisher,
		metrics:   cfg.Metrics,
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	if e.publisher == nil {
		e.publisher = &events.NoopPublisher{}
	}
	e.state.setPhase(model.PhaseIdle)
	return e
}

// TryClaim atomically marks the engine busy. It returns false if a cycle is
// already in process. A caller that gets true must follow up with
// RunO3Process or RunBackDoor.
func (e *Engine) TryClaim() bool {
	return e.state.claim()
}

// InProcess reports whether a cycle is running.
func (e *Engine) InProcess() bool {
	return e.state.inProcess.Load()
}

// AbortRequested reports whether the running cycle has been asked to stop.
func (e *Engine) AbortRequested() bool {
	return e.state.inProcess.Load() && e.state.abortRequested.Load()
}

// Status returns a snapshot of the engine state.
func (e *Engine) Status() model.CycleStatus {
	return e.state.snapshot()
}

// RequestAbort asks the running cycle to stop at its next poll point. It is
// a no-op returning false when no cycle is in process; repeating it within
// one cycle is harmless.
func (e *Engine) RequestAbort() bool {
	if !e.state.requestAbort() {
		return false
	}
	e.logger.Info("cycle: abort requested", "phase", e.state.currentPhase())
	return true
}

// RunO3Process runs the full front door, flush, back door sequence and
// blocks until it ends. Cancelling ctx has the same effect as an abort.
func (e *Engine) RunO3Process(ctx context.Context) model.Outcome {
	return e.run(ctx, model.CycleO3Process, func(r *cycleRun) model.Outcome {
		r.logger.Info("cycle: starting O3 sterilization process")

		if !e.doorCycle(ctx, r, model.GateFront, true) {
			if e.aborted(ctx) {
				return model.OutcomeAborted
			}
			return model.OutcomeEntranceTimeout
		}
		if e.aborted(ctx) {
			return model.OutcomeAborted
		}

		if !e.flush(ctx, r) || e.aborted(ctx) {
			return model.OutcomeAborted
		}

		if !e.doorCycle(ctx, r, model.GateBack, false) {
			return model.OutcomeAborted
		}
		return model.OutcomeCompleted
	})
}

// RunBackDoor opens the back door only, without timeout and without
// flushing, and blocks until it has closed again.
func (e *Engine) RunBackDoor(ctx context.Context) model.Outcome {
	return e.run(ctx, model.CycleBackDoor, func(r *cycleRun) model.Outcome {
		r.logger.Info("cycle: forced back door opening")
		if !e.doorCycle(ctx, r, model.GateBack, false) {
			return model.OutcomeAborted
		}
		return model.OutcomeCompleted
	})
}

// run wraps a cycle body with flag handling, cleanup and reporting.
func (e *Engine) run(ctx context.Context, kind model.CycleKind, body func(*cycleRun) model.Outcome) (outcome model.Outcome) {
	// Direct callers (tests, the bench command) may skip TryClaim.
	e.state.claim()

	id, err := idgen.NewCycleID()
	if err != nil {
		id = fmt.Sprintf("cy-%d", time.Now().UnixNano())
		e.logger.Warn("cycle: falling back to timestamp id", "err", err)
	}
	r := &cycleRun{
		id:      id,
		kind:    kind,
		started: time.Now(),
		logger:  e.logger.With("cycle_id", id, "kind", kind),
		engaged: make(map[model.Pin]bool),
	}
	e.state.current.Store(r)
	e.metrics.CycleStarted(kind)
	e.publish(ctx, r, events.TopicCycleStarted, events.CycleStarted{
		CycleID:    id,
		Kind:       kind,
		FacilityID: e.cfg.FacilityID,
	})

	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("cycle: panic recovered",
				"panic", fmt.Sprintf("%v", rec),
				"stack", string(debug.Stack()),
			)
			outcome = model.OutcomePanicked
		}
		e.releaseOutputs(r)
		e.state.release()

		elapsed := time.Since(r.started)
		r.logger.Info("cycle: finished", "outcome", outcome, "duration", elapsed)
		e.metrics.CycleFinished(kind, outcome, elapsed)
		e.publish(ctx, r, events.TopicCycleFinished, events.CycleFinished{
			CycleID:    id,
			Kind:       kind,
			Outcome:    outcome,
			DurationMS: elapsed.Milliseconds(),
		})
	}()

	return body(r)
}

// doorCycle opens a gate, waits for one person to pass, closes it and waits
// for the reed switch. It returns false when the pass did not happen
// (entrance timeout or abort). The door is commanded closed either way. A
// door is never opened once an abort is pending.
func (e *Engine) doorCycle(ctx context.Context, r *cycleRun, gate model.GateIndex, useTimeout bool) bool {
	pins := e.cfg.Pins.Gate(gate)
	opening, waitPass, closing := model.DoorPhases(gate)
	log := r.logger.With("gate", gate)

	if e.aborted(ctx) {
		log.Info("cycle: abort pending, door left closed")
		return false
	}

	e.enterPhase(ctx, r, opening)
	e.setOutput(r, pins.Open, true)
	begin := time.Now()
	log.Info("cycle: door open, waiting for entrance", "timeout_enabled", useTimeout)

	failed := false

	// The beam reads asserted until someone steps into it.
	for e.drv.ReadPin(pins.IRBeam) {
		if e.aborted(ctx) {
			log.Info("cycle: abort while waiting for entrance")
			failed = true
			break
		}
		if useTimeout && time.Since(begin) > e.cfg.Cycle.EntranceTimeout {
			log.Info("cycle: entrance timed out", "timeout", e.cfg.Cycle.EntranceTimeout)
			failed = true
			break
		}
		e.pause()
	}

	if !failed {
		e.enterPhase(ctx, r, waitPass)
		log.Info("cycle: beam broken, waiting for pass to complete")
		for !e.drv.ReadPin(pins.IRBeam) {
			if e.aborted(ctx) {
				log.Info("cycle: abort while waiting for pass")
				failed = true
				break
			}
			e.pause()
		}
		if !failed {
			log.Info("cycle: pass detected")
		}
	}

	e.enterPhase(ctx, r, closing)
	e.setOutput(r, pins.Open, false)
	log.Info("cycle: door closing")

	// No timeout here: a door that never reports closed holds the cycle
	// until an abort arrives.
	confirmed := true
	for !e.drv.ReadPin(pins.ClosedSwitch) {
		if e.aborted(ctx) {
			confirmed = false
			break
		}
		e.pause()
	}
	if confirmed {
		log.Info("cycle: door closed")
	} else {
		log.Warn("cycle: abort before door closure was confirmed")
	}

	e.metrics.DoorPass(gate, !failed)
	return !failed
}

// flush opens the O3 valve for the configured time, checking for an abort
// every flush tick. The valve is always closed on return. It returns false
// if the flush was cut short.
func (e *Engine) flush(ctx context.Context, r *cycleRun) bool {
	e.enterPhase(ctx, r, model.PhaseFlushing)
	e.setValve(r, true)
	r.logger.Info("cycle: O3 flush started", "duration", e.cfg.Cycle.O3Flush)

	completed := true
	start := time.Now()
	for {
		remaining := e.cfg.Cycle.O3Flush - time.Since(start)
		if remaining <= 0 {
			break
		}
		if e.aborted(ctx) {
			completed = false
			break
		}
		time.Sleep(min(e.cfg.FlushTick, remaining))
	}
	// An abort during the final partial tick still counts.
	if completed && e.aborted(ctx) {
		completed = false
	}

	e.setValve(r, false)
	if completed {
		r.logger.Info("cycle: O3 flush finished")
	} else {
		r.logger.Info("cycle: O3 flush aborted", "elapsed", time.Since(start))
	}
	return completed
}

func (e *Engine) aborted(ctx context.Context) bool {
	return e.state.abortRequested.Load() || ctx.Err() != nil
}

func (e *Engine) pause() {
	time.Sleep(e.cfg.PollInterval)
}

func (e *Engine) setOutput(r *cycleRun, pin model.Pin, on bool) {
	r.engaged[pin] = true
	e.drv.SetPin(pin, on)
}

func (e *Engine) setValve(r *cycleRun, open bool) {
	e.setOutput(r, e.cfg.Pins.O3Valve, open)
	e.metrics.Valve(open)
}

// releaseOutputs is the last thing every cycle does, including one that
// panicked halfway through: every output the cycle drove is forced off.
// Outputs the cycle never touched are left alone.
func (e *Engine) releaseOutputs(r *cycleRun) {
	for pin := range r.engaged {
		e.drv.SetPin(pin, false)
	}
	if r.engaged[e.cfg.Pins.O3Valve] {
		e.metrics.Valve(false)
	}
}

func (e *Engine) enterPhase(ctx context.Context, r *cycleRun, p model.Phase) {
	e.state.setPhase(p)
	r.logger.Debug("cycle: phase", "phase", p)
	e.publish(ctx, r, events.TopicCyclePhase, events.PhaseChanged{CycleID: r.id, Phase: p})
}

// publish is best-effort: a bus outage must never stall a door.
func (e *Engine) publish(ctx context.Context, r *cycleRun, topic string, event any) {
	if err := e.publisher.Publish(context.WithoutCancel(ctx), topic, event); err != nil {
		r.logger.Warn("cycle: failed to publish event", "topic", topic, "err", err)
	}
}
