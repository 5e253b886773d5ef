package spec

import (
	"fmt"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/fabrica-build/fabrica/internal/constants"
	"github.com/fabrica-build/fabrica/internal/domain"
)

// WorkScaffoldPackage asks the agent to generate a package skeleton.
const WorkScaffoldPackage = "scaffold_package"

// ArtifactScaffold records the scaffold output.
const ArtifactScaffold = "scaffold"

// ScaffoldSpec is the minimal decision policy: one scaffold step, then
// finalize. It exists for bootstrap goals that only need a repository
// skeleton, and doubles as the smallest useful Spec implementation.
type ScaffoldSpec struct {
	logger       zerolog.Logger
	retryCeiling int
}

// NewScaffoldSpec creates the scaffold decision policy.
func NewScaffoldSpec(logger zerolog.Logger) *ScaffoldSpec {
	return &ScaffoldSpec{logger: logger, retryCeiling: constants.DefaultRetryCeiling}
}

// Name implements Spec.
func (s *ScaffoldSpec) Name() string { return "scaffold" }

// Version implements Spec.
func (s *ScaffoldSpec) Version() string { return "1" }

// WorkKinds implements Spec.
func (s *ScaffoldSpec) WorkKinds() []string { return []string{WorkScaffoldPackage} }

// Validate implements Spec.
func (s *ScaffoldSpec) Validate() error {
	if s.retryCeiling < 1 {
		return fmt.Errorf("retry ceiling must be at least 1, got %d", s.retryCeiling)
	}
	return nil
}

// Bootstrap opens the single scaffold step.
func (s *ScaffoldSpec) Bootstrap(state domain.EngineState, dctx DecisionContext) (domain.Decision, error) {
	if state.HasArtifact(ArtifactScaffold) {
		return decision(state.GoalID, dctx, true), nil
	}
	return decision(state.GoalID, dctx, false, domain.RequestWork(WorkScaffoldPackage, nil)), nil
}

// OnAgentCompleted finalizes on success, retries on failure.
func (s *ScaffoldSpec) OnAgentCompleted(state domain.EngineState, resp domain.Response, dctx DecisionContext) (domain.Decision, error) {
	if _, ok := state.OpenSteps[resp.StepID]; !ok {
		return domain.Decision{}, fmt.Errorf("response references unknown step %q", resp.StepID)
	}

	switch resp.Status {
	case domain.ResponseStatusPartial:
		return decision(resp.StepID, dctx, false), nil
	case domain.ResponseStatusFail:
		return s.retry(state, resp.Content, resp.StepID, dctx), nil
	case domain.ResponseStatusOK:
		content := resp.Content
		if content == "" {
			content = "complete"
		}
		return decision(resp.StepID, dctx, true, domain.Annotate(ArtifactScaffold, content)), nil
	default:
		return domain.Decision{}, fmt.Errorf("unknown response status %q", resp.Status)
	}
}

// OnAgentError mirrors the package build retry policy for the single step.
func (s *ScaffoldSpec) OnAgentError(state domain.EngineState, workKind string, cause error, attempt int, dctx DecisionContext) (domain.Decision, error) {
	if attempt < s.retryCeiling {
		return decision(workKind, dctx, false,
			domain.Annotate(attemptKeyPrefix+workKind, strconv.Itoa(attempt)),
			domain.RequestWork(workKind, map[string]string{
				"previous_error": cause.Error(),
				"attempt":        strconv.Itoa(attempt + 1),
			}),
		), nil
	}
	terminal := domain.Annotate(ArtifactTerminalError,
		fmt.Sprintf("%s failed after %d attempts: %s", workKind, attempt, cause.Error()))
	return decision(workKind, dctx, true, terminal), nil
}

func (s *ScaffoldSpec) retry(state domain.EngineState, errText, stepID string, dctx DecisionContext) domain.Decision {
	attempts := 0
	if raw, ok := state.Artifacts[attemptKeyPrefix+WorkScaffoldPackage]; ok {
		attempts, _ = strconv.Atoi(raw)
	}
	attempts++
	if attempts < s.retryCeiling {
		return decision(stepID, dctx, false,
			domain.Annotate(attemptKeyPrefix+WorkScaffoldPackage, strconv.Itoa(attempts)),
			domain.RequestWork(WorkScaffoldPackage, map[string]string{
				"previous_error": errText,
				"attempt":        strconv.Itoa(attempts + 1),
			}),
		)
	}
	return decision(stepID, dctx, true,
		domain.Annotate(ArtifactTerminalError,
			fmt.Sprintf("%s failed after %d attempts: %s", WorkScaffoldPackage, attempts, errText)),
	)
}
