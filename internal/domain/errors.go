package domain

import (
	"errors"
	"fmt"
)

// Error kinds. Every error the engine returns wraps exactly one of these.
var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidState = errors.New("invalid state")
	ErrValidation   = errors.New("validation failed")
	ErrDependency   = errors.New("dependency failure")
)

var (
	// ErrSessionNotFound is returned when no session exists for the id.
	ErrSessionNotFound = fmt.Errorf("exam session %w", ErrNotFound)
	// ErrDocumentNotFound indicates the document could not be loaded from the question store.
	ErrDocumentNotFound = fmt.Errorf("document %w", ErrNotFound)

	// ErrSessionAlreadyCompleted is returned for writes against a terminal session.
	ErrSessionAlreadyCompleted = fmt.Errorf("%w: exam session already completed", ErrInvalidState)
	// ErrSessionNotCompleted is returned when results are requested for an active session.
	ErrSessionNotCompleted = fmt.Errorf("%w: exam session not completed", ErrInvalidState)

	ErrNoQuestionsAvailable = fmt.Errorf("%w: no questions available", ErrValidation)
	ErrInvalidQuestionCount = fmt.Errorf("%w: question count must be positive", ErrValidation)
	ErrInvalidTimer         = fmt.Errorf("%w: timer minutes must be a positive integer when the timer is enabled", ErrValidation)
	ErrQuestionNotInSession = fmt.Errorf("%w: question is not part of this session", ErrValidation)
	ErrAnswerTypeMismatch   = fmt.Errorf("%w: answer does not match question type", ErrValidation)
	ErrInvalidQuestionIndex = fmt.Errorf("%w: question index out of range", ErrValidation)
	ErrInvalidQuestion      = fmt.Errorf("%w: invalid question", ErrValidation)
)

// Dependency wraps a storage or transport failure so callers can match ErrDependency
// while keeping the cause. Errors that already carry a domain kind pass through.
func Dependency(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrInvalidState) ||
		errors.Is(err, ErrValidation) || errors.Is(err, ErrDependency) {
		return err
	}
	return fmt.Errorf("%s: %w: %w", op, ErrDependency, err)
}
