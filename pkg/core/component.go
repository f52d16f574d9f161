// Package core defines the live component contract shared by the
// storefront views: mount, event handling, rendering, and termination,
// plus change-tracked assigns and the sockets updates are pushed over.
package core

import (
	"context"
	"io"
)

// Component is a stateful server-side view. One instance serves one
// customer session and lives until the session is evicted.
type Component interface {
	Name() string

	// Mount runs once, before the first event or render.
	Mount(ctx context.Context, params Params, session Session) error

	Render(ctx context.Context) Renderer

	// HandleEvent applies one customer action.
	HandleEvent(ctx context.Context, event string, payload map[string]any) error

	// HandleInfo receives server-side messages, such as a preview retry.
	HandleInfo(ctx context.Context, msg any) error

	Terminate(ctx context.Context, reason TerminateReason) error
}

// Renderer writes a component's HTML.
type Renderer interface {
	Render(ctx context.Context, w io.Writer) error
}

// RendererFunc adapts a function to Renderer.
type RendererFunc func(ctx context.Context, w io.Writer) error

// Render calls f.
func (f RendererFunc) Render(ctx context.Context, w io.Writer) error { return f(ctx, w) }

// Params are the request parameters a component is mounted with.
type Params map[string]string

// Session is the cookie session a component is mounted for.
type Session map[string]any

// TerminateReason says why a component was torn down.
type TerminateReason int

const (
	TerminateNormal TerminateReason = iota
	TerminateShutdown
	TerminateError
	// TerminateTimeout is an idle eviction.
	TerminateTimeout
)

var terminateNames = [...]string{"normal", "shutdown", "error", "timeout"}

func (r TerminateReason) String() string {
	if r < 0 || int(r) >= len(terminateNames) {
		return "unknown"
	}
	return terminateNames[r]
}

// BaseComponent carries the assigns every live view pushes diffs from.
type BaseComponent struct {
	assigns *Assigns
}

// Assigns returns the component's assigns, creating them on first use.
// Call it once before sharing the component between goroutines.
func (bc *BaseComponent) Assigns() *Assigns {
	if bc.assigns == nil {
		bc.assigns = NewAssigns()
	}
	return bc.assigns
}
