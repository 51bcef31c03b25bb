// Package supervisor implements the run supervisor described in the
// runtime's component design: one goroutine per running module,
// reconfigured on membership change, governed by a declared exception
// policy when a module's run loop returns an error.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/signalkit/agentrt/pkg/agenterr"
	"github.com/signalkit/agentrt/pkg/logx"
	"github.com/signalkit/agentrt/pkg/metrics"
	"github.com/signalkit/agentrt/pkg/module"
)

// Policy selects how the supervisor reacts when a module's run loop
// returns a non-cancellation error.
type Policy int

const (
	// LogAndStopModule removes the offending module's task and leaves
	// every other module running. Default policy.
	LogAndStopModule Policy = iota
	// LogAndRemoveModule removes the module itself from the agent.
	LogAndRemoveModule
	// LogAndRerunModule restarts the offending module's task after a
	// fixed backoff.
	LogAndRerunModule
	// LogAndRerunAll cancels every task, then restarts the whole
	// supervisor loop after the same backoff.
	LogAndRerunAll
	// LogAndStopAll cancels every task and returns without error.
	LogAndStopAll
	// RethrowAndStopAll cancels every task and propagates the error.
	RethrowAndStopAll
)

func (p Policy) String() string {
	switch p {
	case LogAndStopModule:
		return "LogAndStopModule"
	case LogAndRemoveModule:
		return "LogAndRemoveModule"
	case LogAndRerunModule:
		return "LogAndRerunModule"
	case LogAndRerunAll:
		return "LogAndRerunAll"
	case LogAndStopAll:
		return "LogAndStopAll"
	case RethrowAndStopAll:
		return "RethrowAndStopAll"
	default:
		return "Unknown"
	}
}

// Backoff is the delay LogAndRerunModule and LogAndRerunAll wait before
// restarting. It is a variable, not a constant, so tests can shrink it.
var Backoff = 10 * time.Millisecond

// errRestartDue flows through the same done channel as a real task result
// to wake the reconciliation loop once a LogAndRerunModule backoff elapses,
// without requiring a second select case per module.
var errRestartDue = errors.New("supervisor: scheduled restart due")

// Remover is the subset of agent behavior LogAndRemoveModule needs: the
// ability to remove a misbehaving module from the agent outright.
type Remover interface {
	RemoveModules(ctx context.Context, targets ...module.Module) (bool, error)
}

// Host supplies the supervisor with the current module set and the means
// to remove a module. The membership-change signal (fired whenever
// Add/Remove mutates the agent while a run is active) is passed to Run
// separately.
type Host interface {
	Remover
	Modules() []module.Module
}

// Run executes every module's RunLoop concurrently until ctx is
// cancelled, every module has exhausted its loop with no membership
// change pending, or the policy terminates the run. agentName and
// recorder are used purely for logging/metrics labeling.
func Run(ctx context.Context, host Host, membershipChanged <-chan struct{}, policy Policy, agentName string, recorder metrics.Recorder) error {
	log := logx.NewLogger(agentName)

	for {
		runCtx, cancel := context.WithCancel(ctx)
		rerunAll, err := runGeneration(runCtx, host, membershipChanged, policy, agentName, recorder, log)
		cancel()

		if err != nil {
			return err
		}
		if !rerunAll {
			return nil
		}
		select {
		case <-time.After(Backoff):
		case <-ctx.Done():
			return nil
		}
	}
}

type taskResult struct {
	m   module.Module
	err error
}

// runGeneration runs one reconfiguration epoch: a goroutine per module not
// already running, restarting the epoch whenever membership changes,
// until the epoch's modules are exhausted or a policy decision is made.
// The bool return reports whether the caller should start a brand new
// generation after a backoff (LogAndRerunAll).
func runGeneration(ctx context.Context, host Host, membershipChanged <-chan struct{}, policy Policy, agentName string, recorder metrics.Recorder, log *logx.Logger) (rerunAll bool, err error) {
	// Every task of this generation is cancelled and waited for before the
	// generation returns, so no run loop outlives it.
	ctx, cancelAll := context.WithCancel(ctx)
	var wg sync.WaitGroup
	defer func() {
		cancelAll()
		wg.Wait()
	}()

	active := map[string]context.CancelFunc{}
	pendingRestarts := 0
	done := make(chan taskResult)

	start := func(m module.Module) {
		r, ok := m.(module.Runner)
		if !ok {
			return
		}
		taskCtx, taskCancel := context.WithCancel(ctx)
		active[m.ModuleID()] = taskCancel
		recorder.SetActiveModules(agentName, len(active))
		wg.Add(1)
		go func() {
			defer wg.Done()
			runErr := r.RunLoop(logx.WithAgentID(taskCtx, agentName))
			select {
			case done <- taskResult{m: m, err: runErr}:
			case <-ctx.Done():
			}
		}()
	}

	reconcile := func() {
		for _, m := range host.Modules() {
			if _, running := active[m.ModuleID()]; !running {
				start(m)
			}
		}
	}
	reconcile()

	for {
		if len(active) == 0 && pendingRestarts == 0 {
			return false, nil
		}

		select {
		case <-ctx.Done():
			for _, cancel := range active {
				cancel()
			}
			return false, nil

		case <-membershipChanged:
			present := map[string]bool{}
			for _, m := range host.Modules() {
				present[m.ModuleID()] = true
			}
			for id, cancel := range active {
				if !present[id] {
					cancel()
					delete(active, id)
				}
			}
			reconcile()
			recorder.SetActiveModules(agentName, len(active))

		case res := <-done:
			if res.err == errRestartDue {
				pendingRestarts--
				start(res.m)
				continue
			}

			delete(active, res.m.ModuleID())
			recorder.SetActiveModules(agentName, len(active))

			if res.err == nil || errors.Is(res.err, context.Canceled) || errors.Is(res.err, agenterr.ErrCancelled) {
				continue
			}

			log.Error("module %s run loop failed: %v (policy=%s)", res.m.ModuleTypeName(), res.err, policy)

			switch policy {
			case LogAndStopModule:
				// Already removed from active above; nothing else to do.

			case LogAndRemoveModule:
				_, _ = host.RemoveModules(ctx, res.m)

			case LogAndRerunModule:
				recorder.IncRunRestart(agentName, res.m.ModuleTypeName(), policy.String())
				pendingRestarts++
				m := res.m
				go func() {
					select {
					case <-time.After(Backoff):
					case <-ctx.Done():
					}
					select {
					case done <- taskResult{m: m, err: errRestartDue}:
					case <-ctx.Done():
					}
				}()

			case LogAndRerunAll:
				for _, cancel := range active {
					cancel()
				}
				return true, nil

			case LogAndStopAll:
				for _, cancel := range active {
					cancel()
				}
				return false, nil

			case RethrowAndStopAll:
				for _, cancel := range active {
					cancel()
				}
				return false, fmt.Errorf("%w: %w", agenterr.ErrRunPolicy, res.err)
			}
		}
	}
}
