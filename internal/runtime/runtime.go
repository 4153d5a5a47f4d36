// Package runtime owns the HAT rule engine: the automations and schedule
// tasks loaded from source, the integrations feeding events in, the function
// registry, and the dispatcher that fans events out to activations.
package runtime

import (
	"context"
	"log"
	"strings"
	"sync"

	"github.com/hatdsl/hat/internal/integration"
	"github.com/hatdsl/hat/internal/integration/clock"
	"github.com/hatdsl/hat/internal/lang"
)

// mailboxCapacity bounds the dispatcher inbox. Producers block when it is
// full, giving natural backpressure from integrations to the engine.
const mailboxCapacity = 128

// message is one unit of dispatcher work: an event from an integration, or
// a TaskRun from the scheduler (event == nil).
type message struct {
	event  *integration.Event
	taskID TaskID
}

// Recorder receives a copy of every event the dispatcher processes.
// Implementations must be safe for concurrent use.
type Recorder interface {
	RecordEvent(e integration.Event) error
}

type integrationHandle struct {
	impl integration.Integration

	// cancel stops the event pump before its next receive.
	cancel chan struct{}
	once   sync.Once
}

func (h *integrationHandle) stop() {
	h.once.Do(func() { close(h.cancel) })
}

// Runtime wires the parser, scheduler, integrations, and dispatcher
// together. Construct with New, feed it source via Parse or ReplaceSource,
// and stop it with Close.
type Runtime struct {
	logger *log.Logger

	ctx    context.Context
	cancel context.CancelFunc

	inbox  chan message
	worker sync.WaitGroup

	scheduler *Scheduler
	recorder  Recorder
	clock     *clock.Clock

	mu          sync.Mutex
	automations map[string]*lang.Automation

	tasksMu sync.Mutex
	tasks   map[TaskID]*lang.ScheduleTask

	integrationsMu   sync.RWMutex
	integrations     map[string]*integrationHandle
	integrationOrder []string

	functionsMu sync.RWMutex
	functions   map[string]Function
}

// Option tweaks runtime construction.
type Option func(*Runtime)

// WithLogger routes runtime logging (including echo output) to the given
// logger instead of the process default.
func WithLogger(logger *log.Logger) Option {
	return func(r *Runtime) { r.logger = logger }
}

// WithRecorder attaches an event history sink.
func WithRecorder(rec Recorder) Option {
	return func(r *Runtime) { r.recorder = rec }
}

// New builds a runtime, registers the built-in functions, starts the
// dispatcher worker, and installs the clock integration.
func New(opts ...Option) *Runtime {
	ctx, cancel := context.WithCancel(context.Background())

	r := &Runtime{
		logger:       log.Default(),
		ctx:          ctx,
		cancel:       cancel,
		inbox:        make(chan message, mailboxCapacity),
		automations:  make(map[string]*lang.Automation),
		tasks:        make(map[TaskID]*lang.ScheduleTask),
		integrations: make(map[string]*integrationHandle),
		functions:    make(map[string]Function),
	}
	for _, opt := range opts {
		opt(r)
	}

	r.scheduler = newScheduler(ctx, r.inbox)
	r.registerBuiltins()

	r.worker.Add(1)
	go r.run()

	r.clock = clock.New()
	r.Integrate(r.clock)

	return r
}

// run is the single dispatcher consumer.
func (r *Runtime) run() {
	defer r.worker.Done()

	for {
		select {
		case <-r.ctx.Done():
			return
		case msg := <-r.inbox:
			if msg.event != nil {
				r.dispatch(*msg.event)
			} else {
				r.runTask(msg.taskID)
			}
		}
	}
}

// dispatch snapshots the automations matching the event and spawns one
// worker per match. The snapshot decouples running activations from any
// concurrent ReplaceSource.
func (r *Runtime) dispatch(event integration.Event) {
	if r.recorder != nil {
		if err := r.recorder.RecordEvent(event); err != nil {
			r.logger.Printf("[runtime] failed to record event: %v", err)
		}
	}

	typeName := event.Type.String()

	r.mu.Lock()
	matching := make([]*lang.Automation, 0, len(r.automations))
	for _, automation := range r.automations {
		if automation.TriggeredBy(typeName) {
			matching = append(matching, automation)
		}
	}
	r.mu.Unlock()

	for _, automation := range matching {
		go r.runActivation(automation.Name, automation.Conditions, automation.Actions, EventTrigger(event))
	}
}

func (r *Runtime) runTask(id TaskID) {
	r.tasksMu.Lock()
	task := r.tasks[id]
	r.tasksMu.Unlock()

	if task == nil {
		return
	}
	go r.runActivation(task.Name, task.Conditions, task.Actions, TaskTrigger(id))
}

// runActivation executes one automation or schedule task: conditions in
// order, stopping silently on the first falsy one, then actions in order,
// stopping (and logging) on the first failure. Errors never escape the
// activation.
func (r *Runtime) runActivation(name string, conditions, actions []lang.Expression, trigger Trigger) {
	ec := &EvalContext{Trigger: trigger, Runtime: r}

	for _, condition := range conditions {
		result, err := Evaluate(r.ctx, ec, condition)
		if err != nil {
			r.logger.Printf("[runtime] condition of %s failed: %v", name, err)
			return
		}
		if !result.Truthy() {
			return
		}
	}

	for _, action := range actions {
		if _, err := Evaluate(r.ctx, ec, action); err != nil {
			r.logger.Printf("[runtime] action of %s failed: %v", name, err)
			return
		}
	}
}

// Parse loads the automations and schedule tasks declared in src on top of
// whatever is already loaded. A later automation with the name of an earlier
// one replaces it.
func (r *Runtime) Parse(filename, src string) error {
	program, err := lang.Parse(filename, src)
	if err != nil {
		return err
	}

	r.mu.Lock()
	for _, automation := range program.Automations {
		r.automations[automation.Name] = automation
	}
	r.mu.Unlock()

	for _, task := range program.ScheduleTasks {
		id, err := r.scheduler.Schedule(task)
		if err != nil {
			return err
		}
		r.tasksMu.Lock()
		r.tasks[id] = task
		r.tasksMu.Unlock()
	}

	return nil
}

// ReplaceSource atomically drops every loaded automation and schedule task
// (cancelling their cron jobs) and loads src instead.
func (r *Runtime) ReplaceSource(filename, src string) error {
	r.ClearAutomations()
	r.ClearScheduleTasks()
	return r.Parse(filename, src)
}

// ClearAutomations drops all loaded automations.
func (r *Runtime) ClearAutomations() {
	r.mu.Lock()
	defer r.mu.Unlock()
	clear(r.automations)
}

// ClearScheduleTasks drops all schedule tasks and cancels their cron jobs.
func (r *Runtime) ClearScheduleTasks() {
	r.tasksMu.Lock()
	defer r.tasksMu.Unlock()

	r.scheduler.Clear()
	clear(r.tasks)
}

// AutomationNames returns the names of the currently loaded automations.
func (r *Runtime) AutomationNames() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := make([]string, 0, len(r.automations))
	for name := range r.automations {
		names = append(names, name)
	}
	return names
}

// RegisterFunction adds or replaces a function in the registry.
func (r *Runtime) RegisterFunction(name string, fn Function) {
	r.functionsMu.Lock()
	defer r.functionsMu.Unlock()
	r.functions[name] = fn
}

// Integrate subscribes to the integration's events and pumps them into the
// dispatcher until the stream closes or the runtime stops it.
func (r *Runtime) Integrate(impl integration.Integration) {
	handle := &integrationHandle{impl: impl, cancel: make(chan struct{})}
	events := impl.Subscribe()
	id := impl.ID()

	go func() {
		for {
			select {
			case <-handle.cancel:
				return
			case <-r.ctx.Done():
				return
			case event, ok := <-events:
				if !ok {
					r.logger.Printf("[runtime] integration %s closed its event stream before being stopped", id)
					return
				}
				select {
				case r.inbox <- message{event: &event}:
				case <-handle.cancel:
					return
				case <-r.ctx.Done():
					return
				}
			}
		}
	}()

	r.integrationsMu.Lock()
	defer r.integrationsMu.Unlock()

	if previous, ok := r.integrations[id]; ok {
		previous.stop()
	} else {
		r.integrationOrder = append(r.integrationOrder, id)
	}
	r.integrations[id] = handle
}

// DispatchEvent enqueues an event directly, bypassing any integration.
func (r *Runtime) DispatchEvent(event integration.Event) error {
	select {
	case r.inbox <- message{event: &event}:
		return nil
	case <-r.ctx.Done():
		return r.ctx.Err()
	}
}

// GetIntegration returns the integration with the given id, or nil.
func (r *Runtime) GetIntegration(id string) integration.Integration {
	r.integrationsMu.RLock()
	defer r.integrationsMu.RUnlock()

	if handle, ok := r.integrations[id]; ok {
		return handle.impl
	}
	return nil
}

// Integrations returns the installed integrations in insertion order.
func (r *Runtime) Integrations() []integration.Integration {
	r.integrationsMu.RLock()
	defer r.integrationsMu.RUnlock()

	result := make([]integration.Integration, 0, len(r.integrationOrder))
	for _, id := range r.integrationOrder {
		if handle, ok := r.integrations[id]; ok {
			result = append(result, handle.impl)
		}
	}
	return result
}

// SplitDeviceID splits a full device id `integration@device` into its parts.
// The integration part is empty for bare device ids.
func SplitDeviceID(fullID string) (integrationID, deviceID string) {
	if before, after, found := strings.Cut(fullID, "@"); found {
		return before, after
	}
	return "", fullID
}

// GetDevice resolves a device id. Prefixed ids route to their integration;
// bare ids are searched across integrations in insertion order, first match
// wins. A nil device with a nil error means the device does not exist.
func (r *Runtime) GetDevice(ctx context.Context, fullID string) (*integration.Device, error) {
	integrationID, deviceID := SplitDeviceID(fullID)

	if integrationID != "" {
		impl := r.GetIntegration(integrationID)
		if impl == nil {
			return nil, nil
		}
		return impl.GetDevice(ctx, deviceID)
	}

	for _, impl := range r.Integrations() {
		device, err := impl.GetDevice(ctx, deviceID)
		if err != nil {
			return nil, err
		}
		if device != nil {
			return device, nil
		}
	}
	return nil, nil
}

// Join blocks until the dispatcher worker terminates.
func (r *Runtime) Join() {
	r.worker.Wait()
}

// Close stops the scheduler, every integration pump, and the dispatcher
// worker, then waits for the worker to exit.
func (r *Runtime) Close() {
	r.scheduler.Stop()
	r.clock.Close()

	r.integrationsMu.Lock()
	for _, handle := range r.integrations {
		handle.stop()
	}
	r.integrationsMu.Unlock()

	r.cancel()
	r.worker.Wait()
}

// Context exposes the runtime's lifetime context; background work spawned
// by built-ins is bound to it.
func (r *Runtime) Context() context.Context {
	return r.ctx
}
