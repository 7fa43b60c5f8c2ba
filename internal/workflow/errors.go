package workflow

import (
	"errors"
	"fmt"
	"strings"
)

// MinReasonLen is the minimum length of a rejection reason. The machine only
// requires a non-empty reason; callers enforce the length before any remote call.
const MinReasonLen = 10

type preconditionError struct {
	msg string
}

func (e *preconditionError) Error() string { return e.msg }

func precondition(msg string) error {
	return &preconditionError{msg: msg}
}

var (
	ErrUnauthorized     = precondition("user is not a party of this trade")
	ErrTradeClosed      = precondition("trade is closed")
	ErrTradeClosing     = precondition("trade close request is pending or approved")
	ErrTradeNotFinished = precondition("every stage must be closed or deleted before closing the trade")
	ErrStageNotFound    = precondition("stage index out of range")
	ErrDocNotFound      = precondition("document index out of range")
	ErrAddReqNotFound   = precondition("stage add request index out of range")
	ErrStageFinished    = precondition("stage is already closed or deleted")
	ErrNotOwner         = precondition("stage is owned by the other party")
	ErrNotPending       = precondition("there is no pending request")
	ErrRequestExists    = precondition("a request can't be made in the current state")
	ErrSelfApproval     = precondition("you can't approve or reject your own request")
	ErrEmptyReason      = precondition("reason is required")
	ErrShortReason      = precondition(fmt.Sprintf("reason must be at least %d characters long", MinReasonLen))
	ErrStageHasDocs     = precondition("a stage with documents can't be deleted")
	ErrFirstStage       = precondition("the first stage can't be deleted")
	ErrExpiryInPast     = precondition("expire time must be in the future")
	ErrInvalidOwner     = precondition("invalid stage owner")
	ErrEmptyName        = precondition("stage name is required")
	ErrInvalidDocument  = precondition("document name and hash are required")
	ErrUnknownOperation = precondition("unknown operation")
	ErrInvalidTrade     = precondition("invalid trade")
)

// IsPrecondition reports whether err was raised by a local state check.
func IsPrecondition(err error) bool {
	var p *preconditionError
	return errors.As(err, &p)
}

// OpError carries the failing operation and its path.
type OpError struct {
	Op   Op
	Path Path
	Err  error
}

func (e *OpError) Error() string {
	return string(e.Op) + " " + e.Path.String() + ": " + e.Err.Error()
}

func (e *OpError) Unwrap() error { return e.Err }

func opErr(op Op, p Path, err error) error {
	if err == nil {
		return nil
	}
	var oe *OpError
	if errors.As(err, &oe) {
		return err
	}
	return &OpError{Op: op, Path: p, Err: err}
}

// ValidateReason checks a rejection reason the way callers must before submitting.
func ValidateReason(reason string) error {
	r := strings.TrimSpace(reason)
	if r == "" {
		return ErrEmptyReason
	}
	if len([]rune(r)) < MinReasonLen {
		return ErrShortReason
	}
	return nil
}
