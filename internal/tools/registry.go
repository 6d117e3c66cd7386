// ABOUTME: Fixed, ordered registry of tools and the single invocation boundary
// ABOUTME: Validates arguments, enforces the call timeout, and isolates handler panics

package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/google/uuid"

	"github.com/2389/mcp-runtime/internal/apierr"
)

// DefaultTimeout is the per-call limit when Options.Timeout is zero.
const DefaultTimeout = 30 * time.Second

// ErrToolNotFound indicates the requested tool is not registered.
var ErrToolNotFound = errors.New("tool not found")

// ErrToolTimeout indicates the tool did not finish within the call timeout.
var ErrToolTimeout = errors.New("tool execution timed out")

// Options configures a Registry.
type Options struct {
	Timeout time.Duration
	Logger  *slog.Logger
}

type entry struct {
	tool   Tool
	schema *jsonschema.Resolved
}

// Registry holds the tools of this deployment. It is built once and never
// modified, so it is safe for concurrent use without locking.
type Registry struct {
	ordered []*entry
	byName  map[string]*entry
	timeout time.Duration
	logger  *slog.Logger
}

// NewRegistry validates and registers tools in the given order.
func NewRegistry(opts Options, tools ...Tool) (*Registry, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	r := &Registry{
		ordered: make([]*entry, 0, len(tools)),
		byName:  make(map[string]*entry, len(tools)),
		timeout: opts.Timeout,
		logger:  opts.Logger,
	}

	for _, t := range tools {
		if t.Name == "" {
			return nil, errors.New("tool name is required")
		}
		if t.Handler == nil {
			return nil, fmt.Errorf("tool %q has no handler", t.Name)
		}
		if _, dup := r.byName[t.Name]; dup {
			return nil, fmt.Errorf("duplicate tool name %q", t.Name)
		}
		if t.InputSchema == nil {
			t.InputSchema = ObjectSchema(nil)
		}

		resolved, err := t.InputSchema.Resolve(nil)
		if err != nil {
			return nil, fmt.Errorf("tool %q: resolving input schema: %w", t.Name, err)
		}

		e := &entry{tool: t, schema: resolved}
		r.ordered = append(r.ordered, e)
		r.byName[t.Name] = e
	}

	return r, nil
}

// List returns the descriptors of all tools in registration order.
func (r *Registry) List() []Descriptor {
	out := make([]Descriptor, len(r.ordered))
	for i, e := range r.ordered {
		out[i] = e.tool.Descriptor()
	}
	return out
}

// Names returns tool names in registration order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.ordered))
	for i, e := range r.ordered {
		out[i] = e.tool.Name
	}
	return out
}

// Len returns the number of registered tools.
func (r *Registry) Len() int { return len(r.ordered) }

// Find looks up a tool by name.
func (r *Registry) Find(name string) (Tool, bool) {
	e, ok := r.byName[name]
	if !ok {
		return Tool{}, false
	}
	return e.tool, true
}

type callResult struct {
	value any
	err   error
}

// Call invokes the named tool with args. Errors are always *apierr.Error:
// INVALID_PARAMS for unknown tools and schema violations, the tool's own
// classification when it returned one, and INTERNAL_ERROR otherwise
// (including timeouts and panics).
func (r *Registry) Call(ctx context.Context, name string, args json.RawMessage) (any, error) {
	e, ok := r.byName[name]
	if !ok {
		return nil, apierr.Wrap(apierr.CodeInvalidParams, "Tool not found: "+name, ErrToolNotFound)
	}

	args, err := e.validate(args)
	if err != nil {
		return nil, err
	}

	invocationID := uuid.NewString()
	logger := r.logger.With("tool_name", name, "invocation_id", invocationID)

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	start := time.Now()
	logger.Debug("→ invoking tool")

	// Buffered so a handler that ignores ctx can still finish and exit.
	done := make(chan callResult, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				logger.Error("tool panicked", "panic", p, "stack", string(debug.Stack()))
				done <- callResult{err: apierr.Internal("tool panicked", fmt.Errorf("panic: %v", p))}
			}
		}()
		v, err := e.tool.Handler(ctx, args)
		done <- callResult{value: v, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			logger.Warn("tool error", "error", res.err, "duration", time.Since(start))
			return nil, classify(res.err)
		}
		logger.Debug("← tool completed", "duration", time.Since(start))
		return res.value, nil
	case <-ctx.Done():
		logger.Warn("tool call timed out or cancelled", "timeout", r.timeout, "error", ctx.Err())
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, apierr.Wrap(apierr.CodeInternal, ErrToolTimeout.Error(), errors.Join(ErrToolTimeout, ctx.Err()))
		}
		return nil, apierr.Wrap(apierr.CodeInternal, "tool execution cancelled", ctx.Err())
	}
}

// validate normalizes args to a JSON object, fills schema defaults for
// missing properties, and checks the result against the schema.
func (e *entry) validate(args json.RawMessage) (json.RawMessage, error) {
	trimmed := bytes.TrimSpace(args)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		trimmed = []byte("{}")
	}

	var instance any
	if err := json.Unmarshal(trimmed, &instance); err != nil {
		return nil, apierr.InvalidParams("arguments must be valid JSON")
	}
	obj, ok := instance.(map[string]any)
	if !ok {
		return nil, apierr.InvalidParams("arguments must be a JSON object")
	}

	if err := e.schema.ApplyDefaults(&obj); err != nil {
		return nil, apierr.Wrap(apierr.CodeInvalidParams, "Invalid arguments: "+err.Error(), err)
	}
	if err := e.schema.Validate(obj); err != nil {
		return nil, apierr.Wrap(apierr.CodeInvalidParams, "Invalid arguments: "+err.Error(), err)
	}

	normalized, err := json.Marshal(obj)
	if err != nil {
		return nil, apierr.Internal("re-encoding arguments", err)
	}
	return normalized, nil
}

// classify keeps a tool's own apierr classification and treats anything
// else as an internal failure carrying the error text.
func classify(err error) error {
	if ae, ok := apierr.As(err); ok {
		return ae
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return apierr.Wrap(apierr.CodeInternal, ErrToolTimeout.Error(), err)
	}
	return apierr.Internal(err.Error(), err)
}
