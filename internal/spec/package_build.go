package spec

import (
	"fmt"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/fabrica-build/fabrica/internal/constants"
	"github.com/fabrica-build/fabrica/internal/domain"
)

// Work kinds emitted by the package build spec.
const (
	// WorkGatherRequirements asks the agent to derive requirements for the package.
	WorkGatherRequirements = "gather_requirements"

	// WorkCreateTasks asks the agent to break requirements into tasks.
	WorkCreateTasks = "create_tasks"

	// WorkImplementTasks asks the agent to implement the tasks. Multiple
	// independent tasks fan out into parallel worktrees.
	WorkImplementTasks = "implement_tasks"

	// WorkValidateBuild asks the agent to run the package's validation suite.
	WorkValidateBuild = "validate_build"

	// WorkPublishPackage asks for the package to be published to the registry.
	WorkPublishPackage = "publish_package"
)

// Artifact keys the package build protocol advances through, in order.
const (
	ArtifactRequirements   = "requirements"
	ArtifactTasks          = "tasks"
	ArtifactImplementation = "implementation"
	ArtifactValidation     = "validation"
	ArtifactApproved       = "approved"
	ArtifactPublished      = "published"

	// ArtifactTerminalError records why a goal was finalized without
	// publishing. Its presence marks a failed build.
	ArtifactTerminalError = "terminal_error"
)

// attemptKeyPrefix namespaces per-work-kind attempt counters in artifacts.
const attemptKeyPrefix = "attempts."

// PackageBuildSpec drives one package from requirements to a published
// registry entry. The protocol is expressed as ordered artifact-presence
// checks: the first artifact missing from state determines the next work
// request. Retries below the ceiling re-request the same work kind with the
// prior error threaded into the payload.
type PackageBuildSpec struct {
	logger          zerolog.Logger
	retryCeiling    int
	requireApproval bool
}

// PackageBuildOption configures a PackageBuildSpec.
type PackageBuildOption func(*PackageBuildSpec)

// WithRetryCeiling overrides the default retry ceiling.
func WithRetryCeiling(n int) PackageBuildOption {
	return func(s *PackageBuildSpec) {
		s.retryCeiling = n
	}
}

// WithoutApprovalGate skips the approval step before publishing.
func WithoutApprovalGate() PackageBuildOption {
	return func(s *PackageBuildSpec) {
		s.requireApproval = false
	}
}

// NewPackageBuildSpec creates the package build decision policy.
func NewPackageBuildSpec(logger zerolog.Logger, opts ...PackageBuildOption) *PackageBuildSpec {
	s := &PackageBuildSpec{
		logger:          logger,
		retryCeiling:    constants.DefaultRetryCeiling,
		requireApproval: true,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name implements Spec.
func (s *PackageBuildSpec) Name() string { return "package-build" }

// Version implements Spec.
func (s *PackageBuildSpec) Version() string { return "1" }

// WorkKinds implements Spec.
func (s *PackageBuildSpec) WorkKinds() []string {
	return []string{
		WorkGatherRequirements,
		WorkCreateTasks,
		WorkImplementTasks,
		WorkValidateBuild,
		WorkPublishPackage,
	}
}

// Validate implements Spec.
func (s *PackageBuildSpec) Validate() error {
	if s.retryCeiling < 1 {
		return fmt.Errorf("retry ceiling must be at least 1, got %d", s.retryCeiling)
	}
	return nil
}

// Bootstrap opens the first work step for a fresh goal.
func (s *PackageBuildSpec) Bootstrap(state domain.EngineState, dctx DecisionContext) (domain.Decision, error) {
	next := s.nextProtocolAction(state, nil)
	return decision(state.GoalID, dctx, next == nil, orEmpty(next)...), nil
}

// OnAgentCompleted interprets an agent response into the next decision.
func (s *PackageBuildSpec) OnAgentCompleted(state domain.EngineState, resp domain.Response, dctx DecisionContext) (domain.Decision, error) {
	step, ok := state.OpenSteps[resp.StepID]
	if !ok {
		return domain.Decision{}, fmt.Errorf("response references unknown step %q", resp.StepID)
	}

	switch resp.Status {
	case domain.ResponseStatusPartial:
		// Step stays open; nothing to decide yet.
		return decision(resp.StepID, dctx, false), nil

	case domain.ResponseStatusFail:
		return s.retryOrFinalize(state, step.Kind, resp.Content, resp.StepID, dctx), nil

	case domain.ResponseStatusOK:
		actions := []domain.Action{s.recordArtifact(step.Kind, resp.Content)}
		next := s.nextProtocolAction(state, &actions[0])
		if next == nil {
			return decision(resp.StepID, dctx, true, actions...), nil
		}
		return decision(resp.StepID, dctx, false, append(actions, *next)...), nil

	default:
		return domain.Decision{}, fmt.Errorf("unknown response status %q", resp.Status)
	}
}

// OnAgentError handles an operation failure below the engine (timeout, agent
// crash). Below the retry ceiling it re-requests the same work kind with the
// previous error and incremented attempt count in the payload; at or above
// the ceiling it finalizes with a terminal annotation.
func (s *PackageBuildSpec) OnAgentError(state domain.EngineState, workKind string, cause error, attempt int, dctx DecisionContext) (domain.Decision, error) {
	if attempt < s.retryCeiling {
		retry := domain.RequestWork(workKind, map[string]string{
			"previous_error": cause.Error(),
			"attempt":        strconv.Itoa(attempt + 1),
		})
		return decision(workKind, dctx, false,
			domain.Annotate(attemptKeyPrefix+workKind, strconv.Itoa(attempt)),
			retry,
		), nil
	}
	terminal := domain.Annotate(ArtifactTerminalError,
		fmt.Sprintf("%s failed after %d attempts: %s", workKind, attempt, cause.Error()))
	return decision(workKind, dctx, true, terminal), nil
}

// PostApply logs a diagnostic snapshot after the engine folds a decision.
// Diagnostics only; it never produces decisions.
func (s *PackageBuildSpec) PostApply(state domain.EngineState) {
	s.logger.Debug().
		Str("goal_id", state.GoalID).
		Str("status", string(state.Status)).
		Int("open_steps", len(state.OpenSteps)).
		Int("artifacts", len(state.Artifacts)).
		Msg("decision applied")
}

// retryOrFinalize implements the FAIL-response path, tracking per-kind
// attempts in artifacts so the count survives replay.
func (s *PackageBuildSpec) retryOrFinalize(state domain.EngineState, workKind, errText, stepID string, dctx DecisionContext) domain.Decision {
	attempts := 0
	if raw, ok := state.Artifacts[attemptKeyPrefix+workKind]; ok {
		attempts, _ = strconv.Atoi(raw)
	}
	attempts++
	if attempts < s.retryCeiling {
		return decision(stepID, dctx, false,
			domain.Annotate(attemptKeyPrefix+workKind, strconv.Itoa(attempts)),
			domain.RequestWork(workKind, map[string]string{
				"previous_error": errText,
				"attempt":        strconv.Itoa(attempts + 1),
			}),
		)
	}
	return decision(stepID, dctx, true,
		domain.Annotate(ArtifactTerminalError,
			fmt.Sprintf("%s failed after %d attempts: %s", workKind, attempts, errText)),
	)
}

// recordArtifact maps a completed work kind to its protocol artifact.
func (s *PackageBuildSpec) recordArtifact(workKind, content string) domain.Action {
	if content == "" {
		content = "complete"
	}
	switch workKind {
	case WorkGatherRequirements:
		return domain.Annotate(ArtifactRequirements, content)
	case WorkCreateTasks:
		return domain.Annotate(ArtifactTasks, content)
	case WorkImplementTasks:
		return domain.Annotate(ArtifactImplementation, content)
	case WorkValidateBuild:
		return domain.Annotate(ArtifactValidation, content)
	case "approval":
		return domain.Annotate(ArtifactApproved, content)
	case WorkPublishPackage:
		return domain.Annotate(ArtifactPublished, content)
	default:
		return domain.Annotate("output."+workKind, content)
	}
}

// nextProtocolAction returns the next protocol step given the artifacts in
// state plus the annotation the current decision is about to write. Nil
// means the protocol is complete and the goal should finalize.
func (s *PackageBuildSpec) nextProtocolAction(state domain.EngineState, pending *domain.Action) *domain.Action {
	has := func(key string) bool {
		if pending != nil && pending.Type == domain.ActionAnnotate && pending.Key == key {
			return true
		}
		return state.HasArtifact(key)
	}

	switch {
	case !has(ArtifactRequirements):
		a := domain.RequestWork(WorkGatherRequirements, nil)
		return &a
	case !has(ArtifactTasks):
		a := domain.RequestWork(WorkCreateTasks, nil)
		return &a
	case !has(ArtifactImplementation):
		payload := map[string]string{}
		if tasks, ok := state.Artifacts[ArtifactTasks]; ok {
			payload[ArtifactTasks] = tasks
		} else if pending != nil && pending.Key == ArtifactTasks {
			payload[ArtifactTasks] = pending.Value
		}
		a := domain.RequestWork(WorkImplementTasks, payload)
		return &a
	case !has(ArtifactValidation):
		a := domain.RequestWork(WorkValidateBuild, nil)
		return &a
	case s.requireApproval && !has(ArtifactApproved):
		a := domain.RequestApproval(map[string]string{"gate": "publish"})
		return &a
	case !has(ArtifactPublished):
		a := domain.RequestWork(WorkPublishPackage, nil)
		return &a
	default:
		return nil
	}
}

// orEmpty converts an optional action into an action slice.
func orEmpty(a *domain.Action) []domain.Action {
	if a == nil {
		return nil
	}
	return []domain.Action{*a}
}
