package execenv

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"
	"strings"

	vlerrors "github.com/systmms/vaultlease/internal/errors"
	"github.com/systmms/vaultlease/internal/logging"
)

// ExitError carries the exit code of a child process that failed.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("command exited with status %d", e.Code)
}

// Executor runs commands with secrets injected as environment variables
type Executor struct {
	logger *logging.Logger
	stdout io.Writer
	stderr io.Writer
	stdin  io.Reader
}

// New creates a new executor wired to the process's standard streams
func New(logger *logging.Logger) *Executor {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Executor{logger: logger, stdout: os.Stdout, stderr: os.Stderr, stdin: os.Stdin}
}

// WithOutput redirects the child's stdout and stderr.
func (e *Executor) WithOutput(stdout, stderr io.Writer) *Executor {
	cp := *e
	cp.stdout = stdout
	cp.stderr = stderr
	return &cp
}

// ExecOptions configures command execution
type ExecOptions struct {
	Command     []string          // Command and arguments to run
	Environment map[string]string // Variables to set
	// KeepExisting lets variables already in the environment win.
	KeepExisting bool
	// PrintVars lists the injected names with masked values before running.
	PrintVars  bool
	WorkingDir string
}

// Exec runs a command with the provided environment variables. A child
// that exits non-zero yields an *ExitError.
func (e *Executor) Exec(ctx context.Context, options ExecOptions) error {
	if err := ValidateCommand(options.Command); err != nil {
		return err
	}

	cmdName := options.Command[0]
	if _, err := exec.LookPath(cmdName); err != nil {
		return vlerrors.UserError{
			Message:    fmt.Sprintf("Command not found: %s", cmdName),
			Suggestion: "Check that the command is installed and on your PATH",
			Err:        err,
		}
	}

	if options.PrintVars {
		e.printEnvironment(options.Environment)
	}

	cmd := exec.CommandContext(ctx, cmdName, options.Command[1:]...)
	cmd.Env = BuildEnvironment(os.Environ(), options.Environment, options.KeepExisting)
	cmd.Stdout = e.stdout
	cmd.Stderr = e.stderr
	cmd.Stdin = e.stdin
	if options.WorkingDir != "" {
		cmd.Dir = options.WorkingDir
	}

	e.logger.Debug("Executing command: %s", strings.Join(options.Command, " "))
	e.logger.Debug("Environment variables set: %d", len(options.Environment))

	if err := cmd.Run(); err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return &ExitError{Code: exitErr.ExitCode()}
		}
		return vlerrors.UserError{
			Message:    fmt.Sprintf("Failed to run %s", strings.Join(options.Command, " ")),
			Details:    err.Error(),
			Suggestion: "Check the command output above for details",
			Err:        err,
		}
	}
	return nil
}

// BuildEnvironment merges vars into base ("KEY=value" entries). vars win
// unless keepExisting is set. The result is sorted.
func BuildEnvironment(base []string, vars map[string]string, keepExisting bool) []string {
	envMap := make(map[string]string, len(base)+len(vars))
	for _, kv := range base {
		if key, value, ok := strings.Cut(kv, "="); ok {
			envMap[key] = value
		}
	}

	for key, value := range vars {
		if _, exists := envMap[key]; exists && keepExisting {
			continue
		}
		envMap[key] = value
	}

	result := make([]string, 0, len(envMap))
	for key, value := range envMap {
		result = append(result, key+"="+value)
	}
	sort.Strings(result)
	return result
}

// Flatten turns a secret view into environment variables. Nested keys are
// joined with "_", upper-cased, and every character outside [A-Z0-9_]
// becomes "_". Strings are used as is; other leaves are JSON encoded.
func Flatten(prefix string, view map[string]interface{}) map[string]string {
	out := make(map[string]string)
	flatten(out, envName(prefix), view)
	return out
}

func flatten(out map[string]string, prefix string, value interface{}) {
	switch v := value.(type) {
	case map[string]interface{}:
		for key, child := range v {
			name := envName(key)
			if prefix != "" {
				name = prefix + "_" + name
			}
			flatten(out, name, child)
		}
	case string:
		if prefix == "" {
			return
		}
		out[prefix] = v
	case nil:
		if prefix != "" {
			out[prefix] = ""
		}
	default:
		if prefix == "" {
			return
		}
		encoded, err := json.Marshal(v)
		if err != nil {
			encoded = []byte(fmt.Sprint(v))
		}
		out[prefix] = string(encoded)
	}
}

func envName(s string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(s) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	return strings.Trim(b.String(), "_")
}

// printEnvironment displays the injected variables with values masked
func (e *Executor) printEnvironment(environment map[string]string) {
	if len(environment) == 0 {
		_, _ = fmt.Fprintln(e.stderr, "No environment variables resolved")
		return
	}

	_, _ = fmt.Fprintf(e.stderr, "Resolved %d environment variables:\n", len(environment))

	keys := make([]string, 0, len(environment))
	for key := range environment {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		_, _ = fmt.Fprintf(e.stderr, "  %s=%s\n", key, maskValue(environment[key]))
	}
}

// maskValue masks a secret value for display
func maskValue(value string) string {
	if len(value) == 0 {
		return "(empty)"
	}
	if len(value) <= 3 {
		return strings.Repeat("*", len(value))
	}
	if len(value) <= 8 {
		return value[:1] + strings.Repeat("*", len(value)-2) + value[len(value)-1:]
	}
	return value[:3] + strings.Repeat("*", 8) + value[len(value)-2:]
}

// ValidateCommand checks that a command was given
func ValidateCommand(command []string) error {
	if len(command) == 0 || strings.TrimSpace(command[0]) == "" {
		return vlerrors.UserError{
			Message:    "No command specified",
			Suggestion: "Provide a command after -- (e.g., vaultlease exec -- ./server)",
		}
	}
	return nil
}
