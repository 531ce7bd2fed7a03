package service

import (
	"errors"

	"github.com/spec-kit/queue-service/internal/repository"
	apperrors "github.com/spec-kit/queue-service/pkg/util/errorutil"
)

// storeError maps repository failures onto the domain taxonomy. Errors that
// are already domain errors pass through untouched.
func storeError(err error, resource string) error {
	if err == nil {
		return nil
	}
	var domainErr *apperrors.DomainError
	if errors.As(err, &domainErr) {
		return err
	}
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return apperrors.NewNotFound(resource, nil)
	case errors.Is(err, repository.ErrDuplicate):
		return apperrors.NewConflict(resource+" already exists", nil)
	case repository.IsUnavailable(err):
		return apperrors.NewCollaboratorUnavailable("store", err)
	}
	return err
}
