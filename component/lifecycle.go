// Package component defines the lifecycle and discovery contracts shared
// by the signal processor, the text generator, and the HTTP gateway.
package component

import (
	"context"
	"time"
)

// State represents the current lifecycle state of a component.
type State int

const (
	// StateCreated indicates the component was created but not initialized.
	StateCreated State = iota
	// StateInitialized indicates Initialize succeeded but Start has not run.
	StateInitialized
	// StateStarted indicates the component is running.
	StateStarted
	// StateStopped indicates the component was stopped.
	StateStopped
	// StateFailed indicates a lifecycle operation failed.
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateInitialized:
		return "initialized"
	case StateStarted:
		return "started"
	case StateStopped:
		return "stopped"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// LifecycleComponent is the management contract every long-running
// component implements:
//   - Initialize() error                 setup and validation, no context
//   - Start(ctx context.Context) error   begin work, ctx bounds the run
//   - Stop(timeout time.Duration) error  graceful shutdown within timeout
//
// Initialize and Start are idempotent: calling them on an already
// initialized or started component returns nil. Stop on a stopped
// component also returns nil.
type LifecycleComponent interface {
	Discoverable
	Initialize() error
	Start(ctx context.Context) error
	Stop(timeout time.Duration) error
}
