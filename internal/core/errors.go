package core

import (
	"errors"
	"fmt"
)

var (
	ErrIncorrectPassword  = errors.New("incorrect password")
	ErrInvalidCredentials = errors.New("name and password are required")
	ErrEmptyResponse      = errors.New("model returned no text")
)

// ErrorKind classifies why an AI stage did not produce a usable result.
type ErrorKind string

const (
	ErrorKindUpstream ErrorKind = "upstream" // the model call failed
	ErrorKindParse    ErrorKind = "parse"    // the model answered but not in the expected shape
	ErrorKindEmpty    ErrorKind = "empty"    // the model answered with nothing
)

type Stage string

const (
	StageAnalyze Stage = "analyze"
	StageRespond Stage = "respond"
)

type TurnError struct {
	Kind  ErrorKind
	Stage Stage
	Err   error
}

func (e *TurnError) Error() string {
	return fmt.Sprintf("%s %s error: %v", e.Stage, e.Kind, e.Err)
}

func (e *TurnError) Unwrap() error {
	return e.Err
}

func newTurnError(stage Stage, kind ErrorKind, err error) *TurnError {
	return &TurnError{Kind: kind, Stage: stage, Err: err}
}

// kindOf maps a generator error to the kind recorded on the turn.
func kindOf(err error) ErrorKind {
	if errors.Is(err, ErrEmptyResponse) {
		return ErrorKindEmpty
	}
	return ErrorKindUpstream
}
