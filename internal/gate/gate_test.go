package gate

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alfredjeanlab/o3gate/internal/cycle"
	"github.com/alfredjeanlab/o3gate/internal/events"
	"github.com/alfredjeanlab/o3gate/internal/gpio"
	"github.com/alfredjeanlab/o3gate/internal/model"
	natsserver "github.com/nats-io/nats-server/v2/server"
)

const testFacility = 7

// fakeEngine blocks every cycle until it is aborted, its context is
// cancelled or the test sends on finish.
type fakeEngine struct {
	inProcess atomic.Bool
	claims    atomic.Int32

	mu      sync.Mutex
	abortCh chan struct{}
	aborted bool

	started chan model.CycleKind
	finish  chan struct{}
	ended   chan model.Outcome
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{
		started: make(chan model.CycleKind, 8),
		finish:  make(chan struct{}),
		ended:   make(chan model.Outcome, 8),
	}
}

func (f *fakeEngine) TryClaim() bool {
	if !f.inProcess.CompareAndSwap(false, true) {
		return false
	}
	f.claims.Add(1)
	f.mu.Lock()
	f.abortCh = make(chan struct{})
	f.aborted = false
	f.mu.Unlock()
	return true
}

func (f *fakeEngine) InProcess() bool { return f.inProcess.Load() }

func (f *fakeEngine) RequestAbort() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.inProcess.Load() {
		return false
	}
	if !f.aborted {
		close(f.abortCh)
		f.aborted = true
	}
	return true
}

func (f *fakeEngine) RunO3Process(ctx context.Context) model.Outcome {
	return f.run(ctx, model.CycleO3Process)
}

func (f *fakeEngine) RunBackDoor(ctx context.Context) model.Outcome {
	return f.run(ctx, model.CycleBackDoor)
}

func (f *fakeEngine) run(ctx context.Context, kind model.CycleKind) model.Outcome {
	f.mu.Lock()
	abortCh := f.abortCh
	f.mu.Unlock()

	f.started <- kind
	out := model.OutcomeCompleted
	select {
	case <-abortCh:
		out = model.OutcomeAborted
	case <-ctx.Done():
		out = model.OutcomeAborted
	case <-f.finish:
	}
	f.inProcess.Store(false)
	f.ended <- out
	return out
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestGate(t *testing.T, eng Engine) *Gate {
	t.Helper()
	g := New(eng, Config{FacilityID: testFacility, Logger: quietLogger()})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = g.Shutdown(ctx)
	})
	return g
}

func trigger(action model.Action) model.TriggerEvent {
	return model.TriggerEvent{FacilityID: testFacility, Action: action}
}

func waitStarted(t *testing.T, f *fakeEngine) model.CycleKind {
	t.Helper()
	select {
	case k := <-f.started:
		return k
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for cycle to start")
	}
	return ""
}

func waitEnded(t *testing.T, f *fakeEngine) model.Outcome {
	t.Helper()
	select {
	case o := <-f.ended:
		return o
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for cycle to end")
	}
	return ""
}

func TestOnTrigger_StartRunsInBackground(t *testing.T) {
	f := newFakeEngine()
	g := newTestGate(t, f)

	done := make(chan Decision, 1)
	go func() { done <- g.OnTrigger(trigger(model.ActionStartProcess)) }()

	select {
	case d := <-done:
		if d != DecisionAccepted {
			t.Fatalf("decision = %q, want accepted", d)
		}
	case <-time.After(time.Second):
		t.Fatal("OnTrigger blocked on the cycle")
	}

	if k := waitStarted(t, f); k != model.CycleO3Process {
		t.Errorf("kind = %q, want %q", k, model.CycleO3Process)
	}
	if !g.InProcess() {
		t.Error("expected gate to report in process")
	}
	f.finish <- struct{}{}
	if o := waitEnded(t, f); o != model.OutcomeCompleted {
		t.Errorf("outcome = %q, want completed", o)
	}
}

func TestOnTrigger_OpenBackDoor(t *testing.T) {
	f := newFakeEngine()
	g := newTestGate(t, f)

	if d := g.OnTrigger(trigger(model.ActionOpenBackDoor)); d != DecisionAccepted {
		t.Fatalf("decision = %q, want accepted", d)
	}
	if k := waitStarted(t, f); k != model.CycleBackDoor {
		t.Errorf("kind = %q, want %q", k, model.CycleBackDoor)
	}
	f.finish <- struct{}{}
	waitEnded(t, f)
}

func TestOnTrigger_WrongFacilityDropped(t *testing.T) {
	f := newFakeEngine()
	g := newTestGate(t, f)

	for _, a := range []model.Action{model.ActionStartProcess, model.ActionOpenBackDoor, model.ActionAbort} {
		ev := model.TriggerEvent{FacilityID: testFacility + 1, Action: a}
		if d := g.OnTrigger(ev); d != DecisionWrongFacility {
			t.Errorf("%s: decision = %q, want %q", a, d, DecisionWrongFacility)
		}
	}
	if f.claims.Load() != 0 {
		t.Errorf("engine claimed %d times, want 0", f.claims.Load())
	}
}

func TestOnTrigger_BusyDropsStartAndOpenBack(t *testing.T) {
	f := newFakeEngine()
	g := newTestGate(t, f)

	if d := g.OnTrigger(trigger(model.ActionStartProcess)); d != DecisionAccepted {
		t.Fatalf("first start: %q", d)
	}
	waitStarted(t, f)

	if d := g.OnTrigger(trigger(model.ActionStartProcess)); d != DecisionBusy {
		t.Errorf("second start = %q, want %q", d, DecisionBusy)
	}
	if d := g.OnTrigger(trigger(model.ActionOpenBackDoor)); d != DecisionBusy {
		t.Errorf("open back = %q, want %q", d, DecisionBusy)
	}
	if f.claims.Load() != 1 {
		t.Errorf("claims = %d, want 1", f.claims.Load())
	}

	f.finish <- struct{}{}
	waitEnded(t, f)

	// Idle again: a new start goes through.
	if d := g.OnTrigger(trigger(model.ActionStartProcess)); d != DecisionAccepted {
		t.Errorf("start after finish = %q, want accepted", d)
	}
	waitStarted(t, f)
	f.finish <- struct{}{}
	waitEnded(t, f)
}

func TestOnTrigger_AbortStopsRunningCycle(t *testing.T) {
	f := newFakeEngine()
	g := newTestGate(t, f)

	g.OnTrigger(trigger(model.ActionStartProcess))
	waitStarted(t, f)

	if d := g.OnTrigger(trigger(model.ActionAbort)); d != DecisionAccepted {
		t.Fatalf("abort decision = %q, want accepted", d)
	}
	if o := waitEnded(t, f); o != model.OutcomeAborted {
		t.Errorf("outcome = %q, want aborted", o)
	}
}

func TestOnTrigger_AbortWhileIdleIsDropped(t *testing.T) {
	f := newFakeEngine()
	g := newTestGate(t, f)

	if d := g.OnTrigger(trigger(model.ActionAbort)); d != DecisionIdle {
		t.Fatalf("decision = %q, want %q", d, DecisionIdle)
	}
	if g.InProcess() {
		t.Error("abort must not start anything")
	}
}

func TestOnTrigger_UnknownAction(t *testing.T) {
	g := newTestGate(t, newFakeEngine())
	if d := g.OnTrigger(trigger("self_destruct")); d != DecisionUnknownAction {
		t.Errorf("decision = %q, want %q", d, DecisionUnknownAction)
	}
}

func TestOnTrigger_DisabledAction(t *testing.T) {
	f := newFakeEngine()
	g := New(f, Config{
		FacilityID: testFacility,
		Actions:    []model.Action{model.ActionStartProcess, model.ActionAbort},
		Logger:     quietLogger(),
	})
	defer g.Shutdown(context.Background()) //nolint:errcheck

	if d := g.OnTrigger(trigger(model.ActionOpenBackDoor)); d != DecisionDisabled {
		t.Errorf("decision = %q, want %q", d, DecisionDisabled)
	}
	if f.claims.Load() != 0 {
		t.Error("disabled action must not claim the engine")
	}
}

func TestOnTrigger_ConcurrentStartsRunOneCycle(t *testing.T) {
	f := newFakeEngine()
	g := newTestGate(t, f)

	const n = 32
	var (
		wg       sync.WaitGroup
		accepted atomic.Int32
		start    = make(chan struct{})
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if g.OnTrigger(trigger(model.ActionStartProcess)).Accepted() {
				accepted.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	if accepted.Load() != 1 {
		t.Fatalf("accepted %d concurrent starts, want 1", accepted.Load())
	}
	waitStarted(t, f)
	f.finish <- struct{}{}
	waitEnded(t, f)
}

func TestShutdown_AbortsAndWaits(t *testing.T) {
	f := newFakeEngine()
	g := New(f, Config{FacilityID: testFacility, Logger: quietLogger()})

	g.OnTrigger(trigger(model.ActionStartProcess))
	waitStarted(t, f)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := g.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if g.InProcess() {
		t.Error("cycle still in process after Shutdown")
	}
	if o := waitEnded(t, f); o != model.OutcomeAborted {
		t.Errorf("outcome = %q, want aborted", o)
	}

	if d := g.OnTrigger(trigger(model.ActionStartProcess)); d != DecisionShuttingDown {
		t.Errorf("decision after shutdown = %q, want %q", d, DecisionShuttingDown)
	}
}

// recordingPublisher captures cycle outcomes from a real engine.
type recordingPublisher struct {
	finished chan events.CycleFinished
}

func (p *recordingPublisher) Publish(_ context.Context, topic string, event any) error {
	if ev, ok := event.(events.CycleFinished); ok {
		p.finished <- ev
	}
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

// newSimEngine builds a real cycle engine over the simulation driver. All
// inputs read high: nobody ever breaks a beam and every door reports
// closed.
func newSimEngine(t *testing.T) (*cycle.Engine, *recordingPublisher) {
	t.Helper()
	layout := model.DefaultPinLayout()
	drv := gpio.NewSimDriver(true)
	if err := drv.ConfigureOutputs(layout.Outputs()); err != nil {
		t.Fatalf("ConfigureOutputs: %v", err)
	}
	pub := &recordingPublisher{finished: make(chan events.CycleFinished, 4)}
	eng := cycle.New(drv, cycle.Config{
		FacilityID: testFacility,
		Pins:       layout,
		Cycle: model.CycleConfig{
			O3Flush:         50 * time.Millisecond,
			EntranceTimeout: 100 * time.Millisecond,
		},
		PollInterval: time.Millisecond,
		FlushTick:    5 * time.Millisecond,
		Logger:       quietLogger(),
		Publisher:    pub,
	})
	return eng, pub
}

func waitFinished(t *testing.T, pub *recordingPublisher) events.CycleFinished {
	t.Helper()
	select {
	case ev := <-pub.finished:
		return ev
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for cycle to finish")
	}
	return events.CycleFinished{}
}

func TestGate_IdleAbortDoesNotCarryOver(t *testing.T) {
	eng, pub := newSimEngine(t)
	g := newTestGate(t, eng)

	if d := g.OnTrigger(trigger(model.ActionAbort)); d != DecisionIdle {
		t.Fatalf("idle abort = %q", d)
	}
	if d := g.OnTrigger(trigger(model.ActionStartProcess)); d != DecisionAccepted {
		t.Fatalf("start = %q", d)
	}

	ev := waitFinished(t, pub)
	if ev.Outcome != model.OutcomeEntranceTimeout {
		t.Errorf("outcome = %q, want %q", ev.Outcome, model.OutcomeEntranceTimeout)
	}
}

func TestGate_AbortForcedBackDoor(t *testing.T) {
	eng, pub := newSimEngine(t)
	g := newTestGate(t, eng)

	// The back door has no timeout; with nobody walking through it stays
	// open until aborted.
	if d := g.OnTrigger(trigger(model.ActionOpenBackDoor)); d != DecisionAccepted {
		t.Fatalf("open back = %q", d)
	}
	time.Sleep(50 * time.Millisecond)
	if !eng.InProcess() {
		t.Fatal("expected back door cycle to be running")
	}
	if d := g.OnTrigger(trigger(model.ActionStartProcess)); d != DecisionBusy {
		t.Errorf("start while back door open = %q, want busy", d)
	}
	if d := g.OnTrigger(trigger(model.ActionAbort)); d != DecisionAccepted {
		t.Fatalf("abort = %q", d)
	}

	ev := waitFinished(t, pub)
	if ev.Kind != model.CycleBackDoor || ev.Outcome != model.OutcomeAborted {
		t.Errorf("finished = %+v, want aborted back_door", ev)
	}
}

// startTestNATS starts an embedded NATS server and returns its client URL.
func startTestNATS(t *testing.T) string {
	t.Helper()
	opts := &natsserver.Options{Host: "127.0.0.1", Port: -1}
	srv, err := natsserver.NewServer(opts)
	if err != nil {
		t.Fatalf("starting embedded NATS: %v", err)
	}
	srv.Start()
	t.Cleanup(srv.Shutdown)
	if !srv.ReadyForConnections(5 * time.Second) {
		t.Fatal("embedded NATS not ready")
	}
	return srv.ClientURL()
}

func TestStartSubscriber_NATS(t *testing.T) {
	url := startTestNATS(t)

	sub, err := events.NewNATSSubscriber(url)
	if err != nil {
		t.Fatalf("creating subscriber: %v", err)
	}
	defer sub.Close()

	pub, err := events.NewNATSPublisher(url)
	if err != nil {
		t.Fatalf("creating publisher: %v", err)
	}
	defer pub.Close()

	f := newFakeEngine()
	g := newTestGate(t, f)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- g.StartSubscriber(ctx, sub, events.TopicTrigger) }()

	// StartSubscriber subscribes asynchronously; keep publishing until the
	// first trigger lands.
	publishRaw := func(v any) {
		data, _ := json.Marshal(v)
		if err := pub.Publish(context.Background(), events.TopicTrigger, json.RawMessage(data)); err != nil {
			t.Fatalf("Publish: %v", err)
		}
		_ = pub.Flush(context.Background())
	}

	// A malformed payload and one for another facility are skipped.
	publishRaw(map[string]any{"facility_id": "x"})
	publishRaw(map[string]any{"facility_id": testFacility + 1, "action": "start_process"})

	deadline := time.After(3 * time.Second)
	for f.claims.Load() == 0 {
		publishRaw(map[string]any{
			"asset_location_id": testFacility,
			"route_action_type": model.RouteManualLiberation,
		})
		select {
		case <-deadline:
			t.Fatal("trigger never reached the engine")
		case <-time.After(20 * time.Millisecond):
		}
	}
	if k := waitStarted(t, f); k != model.CycleBackDoor {
		t.Errorf("kind = %q, want %q", k, model.CycleBackDoor)
	}

	publishRaw(map[string]any{"facility_id": testFacility, "action": "abort"})
	if o := waitEnded(t, f); o != model.OutcomeAborted {
		t.Errorf("outcome = %q, want aborted", o)
	}

	cancel()
	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("StartSubscriber returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("subscriber did not stop")
	}
}

func TestStartSubscriber_ChannelClosed(t *testing.T) {
	g := newTestGate(t, newFakeEngine())
	sub := &closingSubscriber{}

	if err := g.StartSubscriber(context.Background(), sub, events.TopicTrigger); err != nil {
		t.Fatalf("StartSubscriber: %v", err)
	}
}

// closingSubscriber hands out an already closed channel.
type closingSubscriber struct{}

func (closingSubscriber) Subscribe(string) (<-chan []byte, func(), error) {
	ch := make(chan []byte)
	close(ch)
	return ch, func() {}, nil
}

func (closingSubscriber) Close() error { return nil }
