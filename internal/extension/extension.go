// Package extension implements the two hook surfaces the core exposes
// (spec §4.7): transform on session load, and before_send on the per-tick
// hot path. Discovery of extensions is explicitly out of scope (spec §1);
// this package only runs whatever hooks were registered.
package extension

import (
	"log"
	"time"

	"github.com/oiduna/loopd/internal/types"
)

// TransformFunc rewrites a session-load payload before it reaches the
// Message Store. Hooks run sequentially, in registration order; an error
// from any hook aborts the load (the caller maps this to a 5xx and leaves
// the prior Session untouched).
type TransformFunc func(payload []byte) ([]byte, error)

// BeforeSendFunc runs once per tick, on the hot path. It must be pure and
// fast (spec target: p99 < 100µs across the whole pipeline); callers catch
// panics and errors and fall back to the unmodified messages.
type BeforeSendFunc func(messages []types.ScheduledMessage, bpm float64, step int) []types.ScheduledMessage

// RouteGroup is a named collection of extension-owned HTTP routes the
// control plane mounts under its own origin. The concrete router type is
// left to the caller (internal/api uses *gin.Engine.Group); extensions are
// opaque to the engine beyond this shape.
type RouteGroup struct {
	Prefix  string
	Mount   func(mountable interface{})
}

// Pipeline runs the registered transform and before_send hooks.
type Pipeline struct {
	transforms  []namedTransform
	beforeSends []namedBeforeSend
	routes      []RouteGroup

	// onBeforeSendError is called (at most once per burst, left to the
	// caller to debounce) whenever a before_send hook panics or errors.
	onBeforeSendError func(name string, err error)
}

type namedTransform struct {
	name string
	fn   TransformFunc
}
type namedBeforeSend struct {
	name string
	fn   BeforeSendFunc
}

// New returns an empty Pipeline.
func New() *Pipeline {
	return &Pipeline{}
}

// RegisterTransform appends a transform hook, run after any already
// registered.
func (p *Pipeline) RegisterTransform(name string, fn TransformFunc) {
	p.transforms = append(p.transforms, namedTransform{name, fn})
}

// RegisterBeforeSend appends a before_send hook.
func (p *Pipeline) RegisterBeforeSend(name string, fn BeforeSendFunc) {
	p.beforeSends = append(p.beforeSends, namedBeforeSend{name, fn})
}

// RegisterRoutes records a RouteGroup for the HTTP layer to mount.
func (p *Pipeline) RegisterRoutes(rg RouteGroup) {
	p.routes = append(p.routes, rg)
}

// Routes returns every registered RouteGroup.
func (p *Pipeline) Routes() []RouteGroup { return p.routes }

// OnBeforeSendError installs a callback invoked when a before_send hook
// fails; nil disables reporting.
func (p *Pipeline) OnBeforeSendError(fn func(name string, err error)) {
	p.onBeforeSendError = fn
}

// RunTransform runs every registered transform in order, threading the
// payload through each. It stops and returns an error, naming the failing
// extension, on the first failure — the session-load caller must treat
// this as fatal to the load (spec §4.7: "the prior Session remains
// active").
func (p *Pipeline) RunTransform(payload []byte) ([]byte, error) {
	out := payload
	for _, t := range p.transforms {
		next, err := t.fn(out)
		if err != nil {
			return nil, &TransformError{Extension: t.name, Err: err}
		}
		out = next
	}
	return out, nil
}

// TransformError names the extension whose transform hook failed.
type TransformError struct {
	Extension string
	Err       error
}

func (e *TransformError) Error() string {
	return "extension " + e.Extension + ": " + e.Err.Error()
}
func (e *TransformError) Unwrap() error { return e.Err }

// RunBeforeSend runs every registered before_send hook in order. Any panic
// or error from a hook is caught, logged at most once, reported via
// OnBeforeSendError if set, and the pipeline falls back to the messages as
// they stood immediately before that hook — the rest of the pipeline still
// runs on that fallback, keeping the hot path moving (spec §4.7).
func (p *Pipeline) RunBeforeSend(messages []types.ScheduledMessage, bpm float64, step int) []types.ScheduledMessage {
	current := messages
	for _, h := range p.beforeSends {
		current = p.runOneBeforeSend(h, current, bpm, step)
	}
	return current
}

func (p *Pipeline) runOneBeforeSend(h namedBeforeSend, messages []types.ScheduledMessage, bpm float64, step int) (result []types.ScheduledMessage) {
	result = messages
	defer func() {
		if r := recover(); r != nil {
			p.reportBeforeSendFailure(h.name, recoverErr(r))
			result = messages
		}
	}()

	start := time.Now()
	out := h.fn(messages, bpm, step)
	if elapsed := time.Since(start); elapsed > 100*time.Microsecond {
		log.Printf("[EXTENSION] before_send %q took %s (target <100µs)", h.name, elapsed)
	}
	return out
}

func (p *Pipeline) reportBeforeSendFailure(name string, err error) {
	log.Printf("[EXTENSION] before_send %q panicked, using unmodified messages: %v", name, err)
	if p.onBeforeSendError != nil {
		p.onBeforeSendError(name, err)
	}
}

func recoverErr(r interface{}) error {
	if err, ok := r.(error); ok {
		return err
	}
	return &panicError{r}
}

type panicError struct{ v interface{} }

func (p *panicError) Error() string { return "panic: " + formatPanic(p.v) }

func formatPanic(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	if err, ok := v.(error); ok {
		return err.Error()
	}
	return "non-error panic value"
}
