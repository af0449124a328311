package deploy

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"pullhook/internal/app"
	"pullhook/internal/journal"
	"pullhook/internal/security"
)

// Saga runs the two sequential external actions of a deploy: pull the source
// tree, then restart the service. Each step outcome is recorded in the
// journal as it completes, so a failure after a successful pull leaves an
// observable partial state. There is no rollback: if the restart fails the
// tree stays updated, and the journal shows exactly that.
type Saga struct {
	App          *app.App
	Journal      *journal.Journal // nil disables recording (test mode)
	Logger       *slog.Logger
	ExposeOutput bool
	Executor     *Executor
	Outputs      []string
}

// NewSaga creates a saga for a single webhook delivery.
func NewSaga(a *app.App, jnl *journal.Journal, logger *slog.Logger, exposeOutput bool) *Saga {
	return &Saga{
		App:          a,
		Journal:      jnl,
		Logger:       logger,
		ExposeOutput: exposeOutput,
		Executor:     NewExecutor(a.Path),
		Outputs:      []string{},
	}
}

// ShouldDeploy checks if the delivery targets the app's configured branch.
func (s *Saga) ShouldDeploy(ref string) bool {
	return s.App.MatchesRef(ref)
}

// Execute runs the full deploy sequence synchronously and returns the
// response body and HTTP status code. 200 is returned only when both
// external actions exit zero.
func (s *Saga) Execute(ctx context.Context, ref, commitHash string) (map[string]interface{}, int) {
	if ctx == nil {
		ctx = context.Background()
	}

	start := time.Now()

	select {
	case <-ctx.Done():
		return s.errorResponse("Deploy cancelled before start"), http.StatusRequestTimeout
	default:
	}

	if err := security.ValidateBranchName(s.App.Branch); err != nil {
		return s.errorResponse(fmt.Sprintf("Invalid branch name: %v", err)), http.StatusBadRequest
	}
	if err := security.ValidateAppName(s.App.Name); err != nil {
		return s.errorResponse(fmt.Sprintf("Invalid app name: %v", err)), http.StatusBadRequest
	}

	runID := s.beginRun(ctx, ref, commitHash)

	// Step 1: update the source tree from the remote
	pullResult, err := s.Executor.RunGitPull(ctx, s.App.Remote, s.App.Branch, s.App.PullTimeout)
	s.recordStep(ctx, runID, journal.StepPull, pullResult, err)
	if err != nil || pullResult == nil || !pullResult.OK() {
		s.collectOutput(pullResult)
		errMsg := "Git pull failed"
		if err != nil {
			errMsg = fmt.Sprintf("%s: %v", errMsg, err)
		}
		s.logStepFailure(journal.StepPull, pullResult, err)
		s.finishRun(ctx, runID, journal.StatusFailed, time.Since(start), errMsg)
		return s.errorResponse(errMsg), http.StatusInternalServerError
	}
	s.collectOutput(pullResult)
	s.Logger.Info("source tree updated", "app", s.App.Name, "branch", s.App.Branch)

	select {
	case <-ctx.Done():
		errMsg := "Deploy cancelled after pull"
		s.finishRun(ctx, runID, journal.StatusFailed, time.Since(start), errMsg)
		return s.errorResponse(errMsg), http.StatusRequestTimeout
	default:
	}

	// Step 2: restart the service. The tree is already updated; a failure
	// here is recorded as a partial deploy, not rolled back.
	restartResult, err := s.Executor.RunRestart(ctx, s.App.Restart, s.App.RestartTimeout)
	s.recordStep(ctx, runID, journal.StepRestart, restartResult, err)
	if err != nil || restartResult == nil || !restartResult.OK() {
		s.collectOutput(restartResult)
		errMsg := "Service restart failed (source tree already updated)"
		if err != nil {
			errMsg = fmt.Sprintf("%s: %v", errMsg, err)
		}
		s.logStepFailure(journal.StepRestart, restartResult, err)
		s.finishRun(ctx, runID, journal.StatusFailed, time.Since(start), errMsg)
		return s.errorResponse(errMsg), http.StatusInternalServerError
	}
	s.collectOutput(restartResult)
	s.Logger.Info("service restarted", "app", s.App.Name)

	s.finishRun(ctx, runID, journal.StatusSuccess, time.Since(start), "")
	return s.successResponse(), http.StatusOK
}

func (s *Saga) beginRun(ctx context.Context, ref, commitHash string) int64 {
	if s.Journal == nil {
		return 0
	}
	runID, err := s.Journal.BeginRun(ctx, s.App.Name, s.App.Branch, ref, commitHash)
	if err != nil {
		s.Logger.Error("Failed to record run start", "error", err, "app", s.App.Name)
		return 0
	}
	return runID
}

func (s *Saga) recordStep(ctx context.Context, runID int64, name string, result *ExecutionResult, stepErr error) {
	if s.Journal == nil || runID == 0 {
		return
	}

	status := journal.StatusSuccess
	exitCode := 0
	duration := time.Duration(0)
	output := ""

	if result != nil {
		exitCode = result.ReturnCode
		duration = result.Duration
		output = result.Output
	}
	if stepErr != nil || result == nil || !result.OK() {
		status = journal.StatusFailed
	}

	if err := s.Journal.RecordStep(ctx, runID, name, status, exitCode, duration, output); err != nil {
		s.Logger.Error("Failed to record step", "error", err, "app", s.App.Name, "step", name)
	}
}

func (s *Saga) finishRun(ctx context.Context, runID int64, status string, duration time.Duration, errMsg string) {
	if s.Journal == nil || runID == 0 {
		return
	}
	if err := s.Journal.FinishRun(ctx, runID, status, duration, errMsg); err != nil {
		s.Logger.Error("Failed to record run completion", "error", err, "app", s.App.Name)
	}
}

func (s *Saga) collectOutput(result *ExecutionResult) {
	if result != nil && result.Output != "" {
		s.Outputs = append(s.Outputs, result.Output)
	}
}

// logStepFailure logs captured diagnostic output. The output goes to the
// log only; the caller decides whether to expose it in the response.
func (s *Saga) logStepFailure(step string, result *ExecutionResult, err error) {
	attrs := []interface{}{"app", s.App.Name, "step", step}
	if err != nil {
		attrs = append(attrs, "error", err)
	}
	if result != nil {
		attrs = append(attrs, "exit_code", result.ReturnCode, "output", result.Output)
	}
	s.Logger.Error("deploy step failed", attrs...)
}

func (s *Saga) errorResponse(errorMsg string) map[string]interface{} {
	response := map[string]interface{}{
		"error": errorMsg,
	}

	if s.ExposeOutput {
		response["output"] = strings.Join(s.Outputs, "\n")
	}

	return response
}

func (s *Saga) successResponse() map[string]interface{} {
	response := map[string]interface{}{
		"message": "Deploy successful",
	}

	if s.ExposeOutput {
		response["output"] = strings.Join(s.Outputs, "\n")
	}

	return response
}
