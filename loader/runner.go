package loader

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"emperror.dev/errors"
)

// ErrExecTimeout is returned when a module process exceeds its execution
// deadline and is killed.
var ErrExecTimeout = errors.New("loader: module execution timed out")

// Runner executes module files in disposable interpreter processes. A
// module never runs inside the daemon; a crash or hang takes down only
// the child process, which is the isolation boundary the whole load
// pipeline leans on.
type Runner struct {
	binary  string
	timeout time.Duration
}

func NewRunner(binary string, timeoutSeconds int) *Runner {
	if timeoutSeconds <= 0 {
		timeoutSeconds = 30
	}
	return &Runner{binary: binary, timeout: time.Duration(timeoutSeconds) * time.Second}
}

// Lint runs the interpreter's own syntax check against the file. This is
// the authoritative check; the static analyzer pass is advisory only.
func (r *Runner) Lint(ctx context.Context, path string) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, r.binary, "-l", path).CombinedOutput()
	if err == nil {
		return nil
	}
	if ctx.Err() == context.DeadlineExceeded {
		return newError(CodeSyntaxError, "Syntax check timed out.")
	}
	return newErrorWithDetail(CodeSyntaxError, "Syntax error in module file.", lintMessage(out))
}

// Execute includes the module file in a fresh interpreter process and,
// when the module declares an entrypoint, invokes it after the include.
// The combined process output is returned for logging either way.
func (r *Runner) Execute(ctx context.Context, path, entrypoint string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var cmd *exec.Cmd
	if entrypoint != "" {
		code := fmt.Sprintf(
			"require %s; if (function_exists(%s)) { %s(); }",
			phpQuote(path), phpQuote(entrypoint), entrypoint,
		)
		cmd = exec.CommandContext(ctx, r.binary, "-d", "display_errors=1", "-r", code)
	} else {
		cmd = exec.CommandContext(ctx, r.binary, "-d", "display_errors=1", path)
	}

	out, err := cmd.CombinedOutput()
	if ctx.Err() == context.DeadlineExceeded {
		return string(out), ErrExecTimeout
	}
	if err != nil {
		return string(out), errors.Wrap(err, "loader: module process exited abnormally")
	}
	return string(out), nil
}

// lintMessage reduces interpreter lint output to the first meaningful
// line, which carries the error position.
func lintMessage(out []byte) string {
	for _, line := range strings.Split(string(out), "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			return line
		}
	}
	return "unknown syntax error"
}

func phpQuote(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `'`, `\'`)
	return "'" + s + "'"
}
