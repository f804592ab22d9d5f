// Package observability provides hooks for metrics, tracing, and logging.
//
// This package enables optional instrumentation without adding hard dependencies
// on specific observability backends. Consumers register hooks at startup to
// receive events about pipeline stages and individual relocations.
//
// # Usage
//
// Register hooks at application startup:
//
//	func main() {
//	    observability.SetPipelineHooks(&myPipelineHooks{})
//	    observability.SetRelocationHooks(&myRelocationHooks{})
//	    // ... run application
//	}
//
// Libraries call hooks to emit events:
//
//	observability.Pipeline().OnStageStart(ctx, observability.StageScan)
//	// ... scan ...
//	observability.Pipeline().OnStageComplete(ctx, observability.StageScan, len(entries), duration, err)
package observability

import (
	"context"
	"sync"
	"time"
)

// Stage names a pipeline stage.
type Stage string

const (
	StageLoad     Stage = "load"
	StageResolve  Stage = "resolve"
	StageScan     Stage = "scan"
	StageRelocate Stage = "relocate"
)

// =============================================================================
// Pipeline Hooks
// =============================================================================

// PipelineHooks receives events from the pipeline stages. count is the
// number of items the stage produced: packages loaded, packages retained,
// entries scanned, entries moved.
type PipelineHooks interface {
	OnStageStart(ctx context.Context, stage Stage)
	OnStageComplete(ctx context.Context, stage Stage, count int, duration time.Duration, err error)
}

// =============================================================================
// Relocation Hooks
// =============================================================================

// RelocationHooks receives one event per evicted entry.
type RelocationHooks interface {
	// OnMove records a move attempt. err is nil on success.
	OnMove(ctx context.Context, rel string, err error)

	// OnVanished records an entry that was gone before it could be moved.
	OnVanished(ctx context.Context, rel string)
}

// =============================================================================
// No-op Implementations
// =============================================================================

// NoopPipelineHooks is a no-op implementation of PipelineHooks.
type NoopPipelineHooks struct{}

func (NoopPipelineHooks) OnStageStart(context.Context, Stage)                               {}
func (NoopPipelineHooks) OnStageComplete(context.Context, Stage, int, time.Duration, error) {}

// NoopRelocationHooks is a no-op implementation of RelocationHooks.
type NoopRelocationHooks struct{}

func (NoopRelocationHooks) OnMove(context.Context, string, error) {}
func (NoopRelocationHooks) OnVanished(context.Context, string)    {}

// =============================================================================
// Global Hook Registry
// =============================================================================

var (
	pipelineHooks   PipelineHooks   = NoopPipelineHooks{}
	relocationHooks RelocationHooks = NoopRelocationHooks{}
	hooksMu         sync.RWMutex
)

// SetPipelineHooks registers custom pipeline hooks.
// This should be called once at application startup before any pipeline operations.
func SetPipelineHooks(h PipelineHooks) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	if h != nil {
		pipelineHooks = h
	}
}

// SetRelocationHooks registers custom relocation hooks.
func SetRelocationHooks(h RelocationHooks) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	if h != nil {
		relocationHooks = h
	}
}

// Pipeline returns the registered pipeline hooks.
func Pipeline() PipelineHooks {
	hooksMu.RLock()
	defer hooksMu.RUnlock()
	return pipelineHooks
}

// Relocation returns the registered relocation hooks.
func Relocation() RelocationHooks {
	hooksMu.RLock()
	defer hooksMu.RUnlock()
	return relocationHooks
}

// Reset restores all hooks to their no-op defaults.
// This is primarily useful for testing.
func Reset() {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	pipelineHooks = NoopPipelineHooks{}
	relocationHooks = NoopRelocationHooks{}
}
