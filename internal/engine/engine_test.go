package engine

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fabrica-build/fabrica/internal/domain"
)

// testTime is a fixed instant used across engine tests.
var testTime = time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)

func testContext(goalID string) Context {
	return NewContext(goalID, testTime, 42)
}

func TestGenerateStepID(t *testing.T) {
	t.Run("identical contexts yield identical ids", func(t *testing.T) {
		a := GenerateStepID(testContext("goal-1"))
		b := GenerateStepID(testContext("goal-1"))
		assert.Equal(t, a, b)
	})

	t.Run("different seeds yield different ids", func(t *testing.T) {
		a := GenerateStepID(NewContext("goal-1", testTime, 1))
		b := GenerateStepID(NewContext("goal-1", testTime, 2))
		assert.NotEqual(t, a, b)
	})

	t.Run("different times yield different ids", func(t *testing.T) {
		a := GenerateStepID(NewContext("goal-1", testTime, 42))
		b := GenerateStepID(NewContext("goal-1", testTime.Add(time.Second), 42))
		assert.NotEqual(t, a, b)
	})

	t.Run("sequential ids from one context differ", func(t *testing.T) {
		ctx := testContext("goal-1")
		a := GenerateStepID(ctx)
		b := GenerateStepID(ctx)
		assert.NotEqual(t, a, b)
	})
}

func TestApplyRequestWork(t *testing.T) {
	t.Run("inserts waiting step and logs event", func(t *testing.T) {
		state := domain.NewEngineState("goal-1")
		next := ApplyRequestWork(state, domain.RequestWork("create_tasks", map[string]string{"hint": "x"}), testContext("goal-1"))

		require.Len(t, next.OpenSteps, 1)
		for id, step := range next.OpenSteps {
			assert.NotEmpty(t, id)
			assert.Equal(t, "create_tasks", step.Kind)
			assert.Equal(t, domain.StepStatusWaiting, step.Status)
			assert.Equal(t, testTime, step.RequestedAt)
			assert.Equal(t, testTime, step.UpdatedAt)
			assert.Equal(t, "x", step.Payload["hint"])
		}
		require.Len(t, next.Log, 1)
		assert.Equal(t, domain.EventWorkRequested, next.Log[0].Kind)
	})

	t.Run("uses explicit step id when provided", func(t *testing.T) {
		state := domain.NewEngineState("goal-1")
		action := domain.RequestWork("create_tasks", nil)
		action.StepID = "s1"
		next := ApplyRequestWork(state, action, testContext("goal-1"))
		_, ok := next.OpenSteps["s1"]
		assert.True(t, ok)
	})

	t.Run("does not mutate input state", func(t *testing.T) {
		state := domain.NewEngineState("goal-1")
		steps, artifacts := state.OpenSteps, state.Artifacts
		_ = ApplyRequestWork(state, domain.RequestWork("create_tasks", nil), testContext("goal-1"))

		assert.Empty(t, state.OpenSteps)
		assert.Empty(t, state.Log)
		// The originals must be reference-equal, not merely deep-equal.
		assert.True(t, mapsShareIdentity(steps, state.OpenSteps))
		assert.True(t, artifactsShareIdentity(artifacts, state.Artifacts))
	})
}

func TestApplyAnnotate(t *testing.T) {
	t.Run("sets artifact and logs event", func(t *testing.T) {
		state := domain.NewEngineState("goal-1")
		next := ApplyAnnotate(state, domain.Annotate("requirements", "done"), testContext("goal-1"))

		assert.Equal(t, "done", next.Artifacts["requirements"])
		require.Len(t, next.Log, 1)
		assert.Equal(t, domain.EventAnnotated, next.Log[0].Kind)
		assert.Equal(t, "requirements", next.Log[0].Key)
	})

	t.Run("last write wins", func(t *testing.T) {
		ctx := testContext("goal-1")
		state := domain.NewEngineState("goal-1")
		state = ApplyAnnotate(state, domain.Annotate("k", "first"), ctx)
		state = ApplyAnnotate(state, domain.Annotate("k", "second"), ctx)
		assert.Equal(t, "second", state.Artifacts["k"])
	})

	t.Run("does not mutate input artifacts", func(t *testing.T) {
		state := domain.NewEngineState("goal-1")
		state = ApplyAnnotate(state, domain.Annotate("k", "v"), testContext("goal-1"))
		prior := state
		_ = ApplyAnnotate(state, domain.Annotate("k", "v2"), testContext("goal-1"))
		assert.Equal(t, "v", prior.Artifacts["k"])
	})
}

func TestApplyRequestApproval(t *testing.T) {
	state := domain.NewEngineState("goal-1")
	next := ApplyRequestApproval(state, domain.RequestApproval(nil), testContext("goal-1"))

	assert.Equal(t, domain.EngineStatusAwaitingApproval, next.Status)
	require.Len(t, next.OpenSteps, 1)
	for _, step := range next.OpenSteps {
		assert.Equal(t, "approval", step.Kind)
		assert.Equal(t, domain.StepStatusWaiting, step.Status)
	}
	require.Len(t, next.Log, 1)
	assert.Equal(t, domain.EventApprovalRequested, next.Log[0].Kind)
	assert.Equal(t, domain.EngineStatusRunning, state.Status)
}

func TestApplyAgentResponse(t *testing.T) {
	newStateWithStep := func(stepID string) domain.EngineState {
		state := domain.NewEngineState("goal-1")
		action := domain.RequestWork("implement_tasks", nil)
		action.StepID = stepID
		return ApplyRequestWork(state, action, testContext("goal-1"))
	}
	response := func(status domain.ResponseStatus) domain.Response {
		return domain.Response{
			GoalID: "goal-1",
			StepID: "s1",
			RunID:  "run-1",
			Status: status,
		}
	}

	t.Run("goal mismatch is fatal", func(t *testing.T) {
		state := newStateWithStep("s1")
		resp := response(domain.ResponseStatusOK)
		resp.GoalID = "other-goal"
		_, err := ApplyAgentResponse(state, resp, testContext("goal-1"))

		var mismatch *GoalMismatchError
		require.ErrorAs(t, err, &mismatch)
		assert.Equal(t, "goal-1", mismatch.StateGoalID)
		assert.Equal(t, "other-goal", mismatch.ResponseGoalID)
	})

	t.Run("unknown step is fatal", func(t *testing.T) {
		state := newStateWithStep("s1")
		resp := response(domain.ResponseStatusOK)
		resp.StepID = "missing"
		_, err := ApplyAgentResponse(state, resp, testContext("goal-1"))

		var notFound *StepNotFoundError
		require.ErrorAs(t, err, &notFound)
		assert.Equal(t, "missing", notFound.StepID)
	})

	t.Run("ok closes step and logs completion", func(t *testing.T) {
		state := newStateWithStep("s1")
		next, err := ApplyAgentResponse(state, response(domain.ResponseStatusOK), testContext("goal-1"))
		require.NoError(t, err)

		assert.Equal(t, domain.StepStatusDone, next.OpenSteps["s1"].Status)
		last := next.Log[len(next.Log)-1]
		assert.Equal(t, domain.EventStepCompleted, last.Kind)
		assert.Equal(t, "s1", last.StepID)
	})

	t.Run("fail marks step failed without completion event", func(t *testing.T) {
		state := newStateWithStep("s1")
		next, err := ApplyAgentResponse(state, response(domain.ResponseStatusFail), testContext("goal-1"))
		require.NoError(t, err)

		assert.Equal(t, domain.StepStatusFailed, next.OpenSteps["s1"].Status)
		assert.Len(t, next.Log, len(state.Log))
	})

	t.Run("partial keeps step in progress and refreshes updated_at", func(t *testing.T) {
		state := newStateWithStep("s1")
		later := testContext("goal-1")
		later.Now = testTime.Add(5 * time.Minute)
		next, err := ApplyAgentResponse(state, response(domain.ResponseStatusPartial), later)
		require.NoError(t, err)

		step := next.OpenSteps["s1"]
		assert.Equal(t, domain.StepStatusInProgress, step.Status)
		assert.Equal(t, later.Now, step.UpdatedAt)
		assert.Equal(t, testTime, step.RequestedAt)
		for _, ev := range next.Log {
			assert.NotEqual(t, domain.EventStepCompleted, ev.Kind)
		}
	})

	t.Run("approved approval step releases the gate", func(t *testing.T) {
		state := domain.NewEngineState("goal-1")
		action := domain.RequestApproval(nil)
		action.StepID = "approve-1"
		state = ApplyRequestApproval(state, action, testContext("goal-1"))
		require.Equal(t, domain.EngineStatusAwaitingApproval, state.Status)

		resp := response(domain.ResponseStatusOK)
		resp.StepID = "approve-1"
		next, err := ApplyAgentResponse(state, resp, testContext("goal-1"))
		require.NoError(t, err)
		assert.Equal(t, domain.EngineStatusRunning, next.Status)
	})

	t.Run("does not mutate input state", func(t *testing.T) {
		state := newStateWithStep("s1")
		_, err := ApplyAgentResponse(state, response(domain.ResponseStatusOK), testContext("goal-1"))
		require.NoError(t, err)
		assert.Equal(t, domain.StepStatusWaiting, state.OpenSteps["s1"].Status)
	})
}

func TestFinalizeState(t *testing.T) {
	t.Run("marks completed and logs", func(t *testing.T) {
		state := domain.NewEngineState("goal-1")
		next := FinalizeState(state, testContext("goal-1"))

		assert.Equal(t, domain.EngineStatusCompleted, next.Status)
		require.Len(t, next.Log, 1)
		assert.Equal(t, domain.EventWorkflowCompleted, next.Log[0].Kind)
	})

	t.Run("idempotent", func(t *testing.T) {
		state := domain.NewEngineState("goal-1")
		once := FinalizeState(state, testContext("goal-1"))
		twice := FinalizeState(once, testContext("goal-1"))

		assert.Equal(t, domain.EngineStatusCompleted, twice.Status)
		assert.Len(t, twice.Log, 1)
	})
}

func TestFold(t *testing.T) {
	t.Run("applies actions in order then finalizes", func(t *testing.T) {
		decision := domain.Decision{
			DecisionID: "dec-1",
			Actions: []domain.Action{
				domain.Annotate("result", "ok"),
				domain.RequestWork("publish_package", nil),
			},
			Finalize: true,
		}
		next := Fold(domain.NewEngineState("goal-1"), decision, testContext("goal-1"))

		assert.Equal(t, "ok", next.Artifacts["result"])
		assert.Len(t, next.OpenSteps, 1)
		assert.Equal(t, domain.EngineStatusCompleted, next.Status)
		require.Len(t, next.Log, 3)
		assert.Equal(t, domain.EventAnnotated, next.Log[0].Kind)
		assert.Equal(t, domain.EventWorkRequested, next.Log[1].Kind)
		assert.Equal(t, domain.EventWorkflowCompleted, next.Log[2].Kind)
	})
}

func TestErrorsAreComparable(t *testing.T) {
	err := error(&StepNotFoundError{GoalID: "g", StepID: "s"})
	var target *StepNotFoundError
	assert.True(t, errors.As(err, &target))
}

// mapsShareIdentity reports whether two step maps are the same map value.
func mapsShareIdentity(a, b map[string]domain.Step) bool {
	if len(a) != len(b) {
		return false
	}
	a["__probe__"] = domain.Step{}
	_, shared := b["__probe__"]
	delete(a, "__probe__")
	return shared
}

// artifactsShareIdentity reports whether two artifact maps are the same map value.
func artifactsShareIdentity(a, b map[string]string) bool {
	if len(a) != len(b) {
		return false
	}
	a["__probe__"] = ""
	_, shared := b["__probe__"]
	delete(a, "__probe__")
	return shared
}
