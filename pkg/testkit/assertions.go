package testkit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalkit/agentrt/pkg/agent"
)

// RequireState asserts the agent is currently in want, failing the test
// immediately (not just recording a failure) if it isn't — useful as a
// precondition check before the behavior under test runs.
func RequireState(t *testing.T, a *agent.Agent, want agent.State) {
	t.Helper()
	require.Equal(t, want, a.State(), "unexpected agent lifecycle state")
}

// AssertEventuallyState reads ch (as returned by Agent.StateChanges) until
// it observes want. It fails only if ch is closed first; while ch stays
// open and want never arrives, it keeps waiting.
func AssertEventuallyState(t *testing.T, ch <-chan agent.State, want agent.State) {
	t.Helper()
	for s := range ch {
		if s == want {
			return
		}
	}
	assert.Fail(t, "state channel closed without reaching want state", "want=%s", want)
}

// AssertDispatchOrder asserts got, the sequence of owner names observed by
// a test processor chain, matches want exactly and in order.
func AssertDispatchOrder(t *testing.T, want, got []string) {
	t.Helper()
	assert.Equal(t, want, got, "signal dispatch order mismatch")
}
