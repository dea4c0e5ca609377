package cli

import (
	"errors"
	"fmt"

	"mercator-hq/saturn/pkg/config"
	"mercator-hq/saturn/pkg/retention"
)

// Exit codes.
const (
	ExitOK         = 0
	ExitFailure    = 1
	ExitValidation = 2
	ExitNotFound   = 3
	ExitConflict   = 4
)

// ConfigError represents an error in configuration.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config error in %s: %s", e.Field, e.Message)
}

// CommandError represents an error from a command execution.
type CommandError struct {
	Command string
	Err     error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("command %s failed: %v", e.Command, e.Err)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// NewConfigError creates a new ConfigError.
func NewConfigError(field, message string) *ConfigError {
	return &ConfigError{
		Field:   field,
		Message: message,
	}
}

// NewCommandError creates a new CommandError.
func NewCommandError(command string, err error) *CommandError {
	return &CommandError{
		Command: command,
		Err:     err,
	}
}

// ExitCode returns the process exit status for err.
func ExitCode(err error) int {
	var (
		cfgErr      *ConfigError
		cfgValidate config.ValidationError
	)
	switch {
	case err == nil:
		return ExitOK
	case retention.IsValidation(err), errors.As(err, &cfgErr), errors.As(err, &cfgValidate):
		return ExitValidation
	case retention.IsNotFound(err):
		return ExitNotFound
	case retention.IsConflict(err):
		return ExitConflict
	default:
		return ExitFailure
	}
}
