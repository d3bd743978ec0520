package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/mpataki/execlog/internal/models"
	"github.com/mpataki/execlog/internal/storage"
	"github.com/mpataki/execlog/internal/workspace"
)

// failsafeEnv is the environment handed to failsafe commands.
var failsafeEnv = []string{"PATH=/usr/local/bin:/usr/bin:/bin", "TERM=dumb"}

// Runner drives execution commands through their lifecycle. It is the
// single owner of a command while it runs.
type Runner struct {
	storage      *storage.Storage
	workspaceDir string
	shell        string
	timeout      time.Duration
	logger       *zap.Logger
}

type Option func(*Runner)

func WithShell(shell string) Option {
	return func(r *Runner) { r.shell = shell }
}

// WithTimeout bounds each run. Zero means no limit.
func WithTimeout(d time.Duration) Option {
	return func(r *Runner) { r.timeout = d }
}

func WithLogger(logger *zap.Logger) Option {
	return func(r *Runner) { r.logger = logger }
}

func New(store *storage.Storage, workspaceDir string, opts ...Option) *Runner {
	r := &Runner{
		storage:      store,
		workspaceDir: workspaceDir,
		shell:        "/bin/sh",
		logger:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Submit persists a new command and creates its workspace.
func (r *Runner) Submit(cmd *models.ExecutionCommand) (*workspace.Workspace, error) {
	if cmd.ID == nil {
		if _, err := r.storage.CreateCommand(cmd); err != nil {
			return nil, fmt.Errorf("failed to create command: %w", err)
		}
	}

	ws, err := workspace.Create(r.workspaceDir, *cmd.ID)
	if err != nil {
		return nil, err
	}

	return ws, nil
}

// ErrInvalidTransition is returned when a command cannot move to the
// state a run needs.
var ErrInvalidTransition = errors.New("invalid state transition")

// Run executes cmd and records the outcome on it. Internal failures are
// recorded on the command itself; the returned error reports only
// failures to start or persist it.
func (r *Runner) Run(ctx context.Context, cmd *models.ExecutionCommand) error {
	ws, err := r.Submit(cmd)
	if err != nil {
		return err
	}

	log := r.logger.With(zap.Int("id", *cmd.ID))

	if cmd.WorkingDirectory == "" {
		cmd.WorkingDirectory = ws.WorkDir
	}

	if err := r.advance(cmd, models.StateExecuting, models.StatePreExecution); err != nil {
		if errors.Is(err, ErrInvalidTransition) {
			return err
		}
		return r.failStorage(cmd, ws, err)
	}
	r.storage.MarkStarted(*cmd.ID, time.Now())

	log.Debug("executing command", zap.String("command", cmd.String()))

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	if r.execute(ctx, cmd) {
		err = r.complete(cmd)
	} else {
		err = r.storage.UpdateCommandIf(cmd, models.StateExecuting, models.StateFailed)
	}
	if err != nil {
		return r.failStorage(cmd, ws, err)
	}
	r.storage.MarkCompleted(*cmd.ID, time.Now())

	if err := r.writeReports(cmd, ws); err != nil {
		log.Warn("failed to write command reports", zap.Error(err))
	}

	if cmd.IsInternalFailure() {
		log.Error("command failed", zap.String("command", cmd.String()))
	} else {
		log.Info("command finished",
			zap.Stringer("state", cmd.CurrentState),
			zap.Int("exit_code", *cmd.ExitCode))
	}

	return nil
}

// execute runs the process and records its output. It returns false when
// the command was failed in memory instead.
func (r *Runner) execute(ctx context.Context, cmd *models.ExecutionCommand) bool {
	program, args := r.resolve(cmd)

	proc := exec.CommandContext(ctx, program, args...)
	proc.Dir = cmd.WorkingDirectory
	proc.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	proc.Cancel = func() error {
		return syscall.Kill(-proc.Process.Pid, syscall.SIGKILL)
	}
	if cmd.IsFailsafe {
		proc.Env = failsafeEnv
	}

	var stdout, stderr bytes.Buffer
	proc.Stdout = &stdout
	proc.Stderr = &stderr

	if err := proc.Start(); err != nil {
		cmd.SetStateFailed(models.ErrCodeSpawn, fmt.Sprintf("failed to start %s", program), err)
		return false
	}

	// Store PID immediately
	if proc.Process != nil {
		r.storage.UpdateCommandPID(*cmd.ID, proc.Process.Pid)
	}

	err := proc.Wait()

	exitCode := 0
	if proc.ProcessState != nil {
		exitCode = proc.ProcessState.ExitCode()
	}
	cmd.SetOutput(stdout.String(), stderr.String(), exitCode)

	if ctx.Err() != nil {
		cmd.SetStateFailed(models.ErrCodeCancelled, "command cancelled", ctx.Err())
		return false
	}

	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			cmd.SetStateFailed(models.ErrCodeFailed, "failed to wait for command", err)
			return false
		}
	}

	return true
}

// complete moves a command whose process exited through Executed to
// Success. A kill stored while the process ran wins over both: a non-zero
// exit code is the command's own result, a kill is not.
func (r *Runner) complete(cmd *models.ExecutionCommand) error {
	err := r.advance(cmd, models.StateExecuted, models.StateExecuting)
	if errors.Is(err, storage.ErrStateConflict) {
		return r.adoptKill(cmd)
	}
	if err != nil {
		return err
	}
	return r.advance(cmd, models.StateSuccess, models.StateExecuted)
}

// advance persists cmd in state next, provided the stored row is still in
// one of from, and only then applies the state in memory.
func (r *Runner) advance(cmd *models.ExecutionCommand, next models.ExecutionState, from ...models.ExecutionState) error {
	staged := *cmd
	if !staged.SetState(next) {
		return fmt.Errorf("command %d cannot move from %s to %s: %w", *cmd.ID, cmd.CurrentState, next, ErrInvalidTransition)
	}
	if err := r.storage.UpdateCommandIf(&staged, from...); err != nil {
		return err
	}
	*cmd = staged
	return nil
}

// adoptKill takes over the Failed state another process stored for cmd
// while it was executing, keeping the output this run collected.
func (r *Runner) adoptKill(cmd *models.ExecutionCommand) error {
	rec, err := r.storage.GetCommand(*cmd.ID)
	if err != nil {
		return err
	}

	stored := rec.Command
	if !stored.IsStateFailed() {
		return fmt.Errorf("command %d moved to %s while executing: %w", *cmd.ID, stored.CurrentState, storage.ErrStateConflict)
	}

	code := models.ErrCodeCancelled
	if stored.ErrCode != nil {
		code = *stored.ErrCode
	}
	cmd.SetStateFailed(code, stored.Errmsg, nil)
	cmd.Faults = append(cmd.Faults, stored.Faults...)

	return r.storage.UpdateCommandIf(cmd, models.StateFailed)
}

// resolve picks the program to spawn. Commands without an executable run
// their arguments under the configured shell. Failsafe commands run the
// executable through the shell so it is looked up in the minimal PATH.
func (r *Runner) resolve(cmd *models.ExecutionCommand) (string, []string) {
	if cmd.Executable == "" {
		return r.shell, cmd.Arguments
	}
	if cmd.IsFailsafe {
		args := append([]string{"-c", `exec "$0" "$@"`, cmd.Executable}, cmd.Arguments...)
		return r.shell, args
	}
	return cmd.Executable, cmd.Arguments
}

// unfinished lists every state a storage failure may overwrite.
var unfinished = []models.ExecutionState{
	models.StatePreExecution, models.StateExecuting, models.StateExecuted, models.StateFailed,
}

// failStorage fails cmd after a persistence error. Reports are written
// only once the failure itself is stored.
func (r *Runner) failStorage(cmd *models.ExecutionCommand, ws *workspace.Workspace, err error) error {
	log := r.logger.With(zap.Int("id", *cmd.ID))

	if !cmd.SetStateFailed(models.ErrCodeStorage, "failed to persist command", err) {
		log.Error("command could not be failed", zap.Stringer("state", cmd.CurrentState), zap.Error(err))
	} else if perr := r.storage.UpdateCommandIf(cmd, unfinished...); perr != nil {
		log.Error("failed to record storage failure", zap.Error(perr))
	} else if werr := r.writeReports(cmd, ws); werr != nil {
		log.Warn("failed to write command reports", zap.Error(werr))
	}

	return fmt.Errorf("failed to update command %d: %w", *cmd.ID, err)
}

// Read methods for the CLI and TUI

func (r *Runner) GetCommand(id int) (*storage.Record, error) {
	return r.storage.GetCommand(id)
}

func (r *Runner) ListCommands(limit int) ([]*storage.Record, error) {
	return r.storage.ListCommands(limit)
}

func (r *Runner) ListCommandsByState(state models.ExecutionState) ([]*storage.Record, error) {
	return r.storage.ListCommandsByState(state)
}

// Report returns the markdown report written for a command, rendering it
// from storage when the workspace no longer has one.
func (r *Runner) Report(id int) (string, error) {
	if ws, err := workspace.Open(r.workspaceDir, id); err == nil {
		if report, err := ws.ReadReport(); err == nil {
			return report, nil
		}
	}

	rec, err := r.storage.GetCommand(id)
	if err != nil {
		return "", err
	}
	return rec.Command.DetailedMarkdown(), nil
}

// Kill stops an executing command's process group and marks it failed.
func (r *Runner) Kill(id int) error {
	rec, err := r.storage.GetCommand(id)
	if err != nil {
		return fmt.Errorf("failed to get command: %w", err)
	}

	cmd := rec.Command
	if cmd.CurrentState != models.StateExecuting {
		return fmt.Errorf("command %d is not executing (state %s)", id, cmd.CurrentState)
	}

	// Record the kill before signalling so the owning run sees it when its
	// process exits.
	cmd.SetStateFailed(models.ErrCodeCancelled, "command killed", errors.New("killed by request"))
	if err := r.storage.UpdateCommandIf(cmd, models.StateExecuting); err != nil {
		return fmt.Errorf("failed to update command: %w", err)
	}
	r.storage.MarkCompleted(id, time.Now())

	if rec.PID != nil {
		// Kill the process group to ensure child processes are also killed
		if err := syscall.Kill(-*rec.PID, syscall.SIGKILL); err != nil && !errors.Is(err, syscall.ESRCH) {
			r.logger.Warn("failed to signal command", zap.Int("id", id), zap.Error(err))
		}
	}

	r.logger.Info("command killed", zap.Int("id", id))
	return nil
}

func (r *Runner) DeleteCommand(id int) error {
	if _, err := r.storage.GetCommand(id); err != nil {
		return fmt.Errorf("failed to get command: %w", err)
	}

	// Remove workspace directory
	if ws, err := workspace.Open(r.workspaceDir, id); err == nil {
		if err := ws.Remove(); err != nil {
			return fmt.Errorf("failed to remove workspace: %w", err)
		}
	}

	return r.storage.DeleteCommand(id)
}

// ShellCommand builds a command that runs script under the configured shell.
func (r *Runner) ShellCommand(script string) *models.ExecutionCommand {
	return models.NewExecutionCommandWithParams(nil, r.shell, []string{"-c", script}, currentDir(), false, false)
}

func currentDir() string {
	wd, err := os.Getwd()
	if err != nil {
		return ""
	}
	return wd
}
