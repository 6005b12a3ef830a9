package rules

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound matches every NotFoundError via errors.Is.
	ErrNotFound = errors.New("not found")

	// ErrMalformed matches every MalformedInputError via errors.Is.
	ErrMalformed = errors.New("malformed input")

	// ErrDisabled is returned while rule processing is stopped by command.
	ErrDisabled = errors.New("rules processing disabled")
)

// NotFoundError reports an unknown engine or rule id.
type NotFoundError struct {
	// Kind is "engine" or "rule"
	Kind string

	// Name is the missing engine name or rule id
	Name string

	// Engine is set for missing rules
	Engine string
}

func (e *NotFoundError) Error() string {
	if e.Kind == "rule" && e.Engine != "" {
		return fmt.Sprintf("rule %s not found in ruleset %s", e.Name, e.Engine)
	}
	if e.Kind == "" {
		return fmt.Sprintf("%s not found", e.Name)
	}
	return fmt.Sprintf("%s %s not found", e.Kind, e.Name)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

func EngineNotFound(name string) error {
	return &NotFoundError{Kind: "engine", Name: name}
}

func RuleNotFound(engine, id string) error {
	return &NotFoundError{Kind: "rule", Name: id, Engine: engine}
}

// MalformedInputError reports a rule document that failed structural validation.
type MalformedInputError struct {
	// Field locates the problem, e.g. "rules[2].conditions.all[0].fact"
	Field string

	Message string

	Cause error
}

func (e *MalformedInputError) Error() string {
	msg := e.Message
	if e.Field != "" {
		msg = e.Field + ": " + msg
	}
	if e.Cause != nil {
		return fmt.Sprintf("invalid rules format: %s: %v", msg, e.Cause)
	}
	return "invalid rules format: " + msg
}

func (e *MalformedInputError) Unwrap() error {
	return e.Cause
}

func (e *MalformedInputError) Is(target error) bool {
	return target == ErrMalformed
}

// IsNotFound reports whether err (or any error it wraps) is a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsMalformed reports whether err (or any error it wraps) is a MalformedInputError.
func IsMalformed(err error) bool {
	var mi *MalformedInputError
	return errors.As(err, &mi)
}
