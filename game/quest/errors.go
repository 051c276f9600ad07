package quest

import (
	"errors"
	"fmt"
)

// Kind classifies lifecycle errors.
type Kind string

const (
	// KindValidation is an intent that is not valid in the current state.
	KindValidation Kind = "validation"
	// KindTiming is a completion outside the accepted time window. The quest
	// is still recorded, unvalidated.
	KindTiming Kind = "timing"
	// KindPersistence is a repository failure. State is left unchanged so the
	// intent can be retried.
	KindPersistence Kind = "persistence"
)

var (
	ErrQuestActive     = errors.New("quest: a quest is already active")
	ErrNoActiveQuest   = errors.New("quest: no active quest")
	ErrNotFinished     = errors.New("quest: planned end not reached")
	ErrAlreadyEnded    = errors.New("quest: quest already ended")
	ErrInvalidDuration = errors.New("quest: duration out of range")
	ErrUnknownHero     = errors.New("quest: unknown hero")
	ErrQuestNotFound   = errors.New("quest: quest not found")
)

// Error is the error surfaced to callers and in ShowError effects.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// MarshalJSON exposes the kind and a client-safe message. Persistence
// details stay in the server log.
func (e *Error) MarshalJSON() ([]byte, error) {
	msg := e.Err.Error()
	if e.Kind == KindPersistence {
		msg = "storage unavailable, please retry"
	}
	return jsonMarshal(map[string]string{"kind": string(e.Kind), "op": e.Op, "message": msg})
}

func validationErr(op string, err error) *Error { return &Error{Kind: KindValidation, Op: op, Err: err} }
func timingErr(op string, err error) *Error     { return &Error{Kind: KindTiming, Op: op, Err: err} }
func persistenceErr(op string, err error) *Error {
	return &Error{Kind: KindPersistence, Op: op, Err: err}
}

// KindOf returns the kind of err, or "" when err is not an *Error.
func KindOf(err error) Kind {
	var qe *Error
	if errors.As(err, &qe) {
		return qe.Kind
	}
	return ""
}
