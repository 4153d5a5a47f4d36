package runtime

import (
	"context"

	"github.com/google/uuid"

	"github.com/hatdsl/hat/internal/integration"
	"github.com/hatdsl/hat/internal/value"
)

// TaskID identifies a scheduled task for the lifetime of one source load.
type TaskID = uuid.UUID

// Trigger is what woke an activation: the event that matched, or the id of
// the schedule task that fired. Exactly one side is set.
type Trigger struct {
	Event  *integration.Event
	TaskID TaskID
}

// EventTrigger wraps an event as an activation trigger.
func EventTrigger(e integration.Event) Trigger {
	return Trigger{Event: &e}
}

// TaskTrigger wraps a schedule firing as an activation trigger.
func TaskTrigger(id TaskID) Trigger {
	return Trigger{TaskID: id}
}

// EvalContext is the per-activation state shared by every expression node of
// one evaluation. Built-in functions reach the runtime through it.
type EvalContext struct {
	Trigger Trigger
	Runtime *Runtime
}

// Function is a native function callable from HAT expressions. The
// context.Context is the runtime's lifetime; blocking functions must honor
// its cancellation.
type Function func(ctx context.Context, ec *EvalContext, args []value.Value) (value.Value, error)

// LookupFunction resolves a function by name in the runtime's registry.
func (ec *EvalContext) LookupFunction(name string) (Function, bool) {
	ec.Runtime.functionsMu.RLock()
	defer ec.Runtime.functionsMu.RUnlock()

	fn, ok := ec.Runtime.functions[name]
	return fn, ok
}
