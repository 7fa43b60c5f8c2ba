package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"tradeflow/internal/ledger"
	"tradeflow/internal/repository"
	"tradeflow/internal/service"
	"tradeflow/internal/workflow"
)

// statusFor maps service, ledger and workflow errors onto HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrForbidden), errors.Is(err, workflow.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, service.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrStaleReference), errors.Is(err, repository.ErrConflict),
		errors.Is(err, repository.ErrDuplicateTx):
		return http.StatusConflict
	case errors.Is(err, service.ErrBadLogin),
		errors.Is(err, ledger.ErrMalformedToken),
		errors.Is(err, ledger.ErrDescriptorMismatch),
		errors.Is(err, ledger.ErrBadSignature):
		return http.StatusUnauthorized
	case workflow.IsPrecondition(err):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

// fail writes err as an envelope and records it for the audit middleware.
func fail(c *gin.Context, err error) {
	_ = c.Error(err)
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal error"
	}
	Error(c, status, msg, nil)
}
