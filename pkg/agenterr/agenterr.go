// Package agenterr defines the typed error taxonomy shared by the agent
// runtime: a small set of sentinel errors callers can test with errors.Is,
// plus aggregate wrapper types for the multi-cause failures that insertion,
// initialization, and disposal can produce.
package agenterr

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors. Wrap these with fmt.Errorf("...: %w", Err...) at the
// call site so errors.Is keeps working through additional context.
var (
	// ErrInvalidState is returned when an operation is not permitted in
	// the agent's current lifecycle state.
	ErrInvalidState = errors.New("agent: operation not permitted in current state")

	// ErrNotFound is returned when a requested module is absent.
	ErrNotFound = errors.New("agent: module not found")

	// ErrDependencyUnresolved is returned when a constructor parameter
	// has no satisfying value during module insertion.
	ErrDependencyUnresolved = errors.New("agent: dependency could not be resolved")

	// ErrCancelled marks a run loop stopped by caller-supplied
	// cancellation rather than by a module error. The run supervisor
	// treats a run loop returning it like context.Canceled: a quiet stop,
	// not a failure, and Run itself returns nil on cancellation.
	ErrCancelled = errors.New("agent: run cancelled")

	// ErrRunPolicy marks an error propagated out of Run by the
	// RethrowAndStopAll exception policy.
	ErrRunPolicy = errors.New("agent: run stopped by exception policy")

	// ErrVeto marks a dispose-time InvalidOperation: the module refuses
	// removal. It is a control signal, not a genuine failure, and is
	// never aggregated into ModuleDisposeError.
	ErrVeto = errors.New("agent: module vetoed its own removal")
)

// ModuleInsertError wraps the cause of a failed Add, after the runtime has
// already rolled back every module inserted during the failed attempt.
type ModuleInsertError struct {
	ModuleType string
	Cause      error
}

func (e *ModuleInsertError) Error() string {
	return fmt.Sprintf("agent: insert %s failed (rolled back): %v", e.ModuleType, e.Cause)
}

func (e *ModuleInsertError) Unwrap() error { return e.Cause }

// ModuleFailure pairs a module's display identity with the error it raised.
type ModuleFailure struct {
	ModuleType string
	ModuleID   string
	Err        error
}

func (f ModuleFailure) String() string {
	return fmt.Sprintf("%s[%s]: %v", f.ModuleType, f.ModuleID, f.Err)
}

// ModuleInitError aggregates the failures of one or more modules'
// Initialize calls. The agent still reaches Initialized; this error is
// raised to the caller of Initialize alongside that transition.
type ModuleInitError struct {
	Failures []ModuleFailure
}

func (e *ModuleInitError) Error() string {
	parts := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		parts[i] = f.String()
	}
	return fmt.Sprintf("agent: %d module(s) failed to initialize: %s", len(e.Failures), strings.Join(parts, "; "))
}

func (e *ModuleInitError) Unwrap() []error {
	errs := make([]error, len(e.Failures))
	for i, f := range e.Failures {
		errs[i] = f.Err
	}
	return errs
}

// ModuleDisposeError aggregates the non-veto failures of a removal batch.
// Vetoes (ErrVeto) are never included here; they are a distinct, expected
// outcome reported via RemoveModules' boolean return.
type ModuleDisposeError struct {
	Failures []ModuleFailure
}

func (e *ModuleDisposeError) Error() string {
	parts := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		parts[i] = f.String()
	}
	return fmt.Sprintf("agent: %d module(s) failed to dispose: %s", len(e.Failures), strings.Join(parts, "; "))
}

func (e *ModuleDisposeError) Unwrap() []error {
	errs := make([]error, len(e.Failures))
	for i, f := range e.Failures {
		errs[i] = f.Err
	}
	return errs
}

// IsVeto reports whether err represents a dispose-time veto rather than a
// genuine failure.
func IsVeto(err error) bool {
	return errors.Is(err, ErrVeto)
}
