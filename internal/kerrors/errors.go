// Package kerrors defines the sentinel error taxonomy for the command
// execution core, so callers can distinguish recoverable compilation
// failures from fatal contract violations using errors.Is.
package kerrors

import "errors"

var (
	// ErrVariableNotExist is returned when a statement references a variable
	// name that is not bound in the session's symbol table.
	ErrVariableNotExist = errors.New("kestrel: variable does not exist")

	// ErrEmptyInputVariable is returned by guard-empty-input wrapped executors
	// when an input variable has length+records_count == 0.
	ErrEmptyInputVariable = errors.New("kestrel: input variable is empty")

	// ErrNonUniformEntityType is returned by MERGE when its inputs do not all
	// share the same entity type.
	ErrNonUniformEntityType = errors.New("kestrel: inputs have non-uniform entity types")

	// ErrInvalidAttribute is returned by pattern/relation compilation when a
	// referenced attribute does not exist in the store schema for the entity
	// type in question. Recoverable: callers fall back to a nil pattern for
	// that branch rather than aborting the statement.
	ErrInvalidAttribute = errors.New("kestrel: invalid attribute")

	// ErrKestrelInternal signals a parser/executor contract violation, such as
	// a GET statement lacking both a datasource and a variablesource. Fatal.
	ErrKestrelInternal = errors.New("kestrel: internal error")
)
