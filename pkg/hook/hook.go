// Package hook executes user-configured shell commands around sync runs,
// typically "git pull" before and "git commit" after. Commands run as
// provided; they are only as trustworthy as the config file they came from.
package hook

import (
	"context"
	"os"
	"os/exec"

	"github.com/driftsync/driftsync/pkg/hints"
	"github.com/driftsync/driftsync/pkg/plog"
)

// ErrNothingToExecute signals an empty command list, a skip rather than a
// failure.
var ErrNothingToExecute = hints.New("nothing to execute")

// Phase names the two hook points of a run.
type Phase string

const (
	PhasePreSync  Phase = "pre-sync"
	PhasePostSync Phase = "post-sync"
)

// Executor runs hook commands through the platform shell.
type Executor struct {
	// commandContext allows mocking os/exec in tests.
	commandContext func(ctx context.Context, name string, arg ...string) *exec.Cmd
}

// NewExecutor creates an executor. Passing nil uses exec.CommandContext.
func NewExecutor(commandContext func(ctx context.Context, name string, arg ...string) *exec.Cmd) *Executor {
	if commandContext == nil {
		commandContext = exec.CommandContext
	}
	return &Executor{commandContext: commandContext}
}

// Run executes the commands in order. A failing command aborts the sequence:
// a broken pre-sync hook usually means the trees are not in the state the
// user expects, so syncing anyway would be worse than stopping.
func (e *Executor) Run(ctx context.Context, phase Phase, commands []string, dryRun bool) error {
	if len(commands) == 0 {
		return ErrNothingToExecute
	}

	for _, command := range commands {
		if err := ctx.Err(); err != nil {
			return err
		}
		if dryRun {
			plog.Notice("[DRY RUN] Would execute hook", "phase", string(phase), "command", command)
			continue
		}

		plog.Notice("Executing hook", "phase", string(phase), "command", command)
		cmd := e.createCommand(ctx, command)
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr

		if err := cmd.Run(); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return &CommandError{Phase: phase, Command: command, Err: err}
		}
	}
	return nil
}

// CommandError reports which hook command failed.
type CommandError struct {
	Phase   Phase
	Command string
	Err     error
}

func (e *CommandError) Error() string {
	return string(e.Phase) + " hook '" + e.Command + "' failed: " + e.Err.Error()
}

func (e *CommandError) Unwrap() error { return e.Err }
