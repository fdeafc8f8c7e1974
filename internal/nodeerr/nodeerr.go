// Package nodeerr owns the error kinds shared by the tree, builder, signal and
// transport layers.
//
// Kinds travel over the wire as plain strings inside error replies, so a remote
// peer can match on them without sharing Go types.
package nodeerr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for callers and remote peers.
type Kind string

const (
	InvalidPath           Kind = "InvalidPath"
	CastingFailed         Kind = "CastingFailed"
	BrokenLink            Kind = "BrokenLink"
	DuplicateRegistration Kind = "DuplicateRegistration"
	DuplicateSignal       Kind = "DuplicateSignal"
	UnknownType           Kind = "UnknownType"
	UnknownSignal         Kind = "UnknownSignal"
	BadArgument           Kind = "BadArgument"
	HandlerFailed         Kind = "HandlerFailed"
	FrameParseError       Kind = "FrameParseError"
	ConnectionError       Kind = "ConnectionError"
)

// Sentinels for errors.Is matching by kind.
var (
	ErrInvalidPath           = &Error{Kind: InvalidPath}
	ErrCastingFailed         = &Error{Kind: CastingFailed}
	ErrBrokenLink            = &Error{Kind: BrokenLink}
	ErrDuplicateRegistration = &Error{Kind: DuplicateRegistration}
	ErrDuplicateSignal       = &Error{Kind: DuplicateSignal}
	ErrUnknownType           = &Error{Kind: UnknownType}
	ErrUnknownSignal         = &Error{Kind: UnknownSignal}
	ErrBadArgument           = &Error{Kind: BadArgument}
	ErrHandlerFailed         = &Error{Kind: HandlerFailed}
	ErrFrameParse            = &Error{Kind: FrameParseError}
	ErrConnection            = &Error{Kind: ConnectionError}
)

// Error is a classified error. Op names the failing operation.
type Error struct {
	Kind Kind
	Op   string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	} else if e.Err != nil {
		msg = msg + ": " + e.Err.Error()
	}
	switch {
	case e.Op != "" && msg != "":
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Kind, msg)
	case e.Op != "":
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	case msg != "":
		return fmt.Sprintf("%s: %s", e.Kind, msg)
	default:
		return string(e.Kind)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches sentinels: a target with no message and no cause matches any
// error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Msg == "" && t.Op == "" && t.Err == nil {
		return t.Kind == e.Kind
	}
	return t == e
}

// New builds a classified error with a formatted message.
func New(kind Kind, op string, format string, args ...any) error {
	return &Error{Kind: kind, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// Wrap classifies an underlying error.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf reports the kind of err, or HandlerFailed for unclassified errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return HandlerFailed
}

// Message returns the human-readable part of err without the op/kind prefix.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		switch {
		case e.Msg != "" && e.Err != nil:
			return e.Msg + ": " + e.Err.Error()
		case e.Msg != "":
			return e.Msg
		case e.Err != nil:
			return e.Err.Error()
		default:
			return string(e.Kind)
		}
	}
	if err == nil {
		return ""
	}
	return err.Error()
}
