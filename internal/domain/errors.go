package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingRequiredField is returned when a raw record lacks a usable name or price
	ErrMissingRequiredField = errors.New("missing required field")

	// ErrUnparsablePrice is returned when a raw price has no digits or an unknown currency
	ErrUnparsablePrice = errors.New("unparsable price")

	// ErrAmbiguousCategoryData flags a group whose members disagree on category.
	// It is advisory and never aborts a run.
	ErrAmbiguousCategoryData = errors.New("ambiguous category data")

	// ErrEmptyInputRun is returned alongside the (empty) result when a run has no valid listings
	ErrEmptyInputRun = errors.New("run received zero valid listings")

	// ErrInvalidRequest is returned when request parameters are invalid
	ErrInvalidRequest = errors.New("invalid request parameters")

	// ErrInvalidTopK is returned when a top-K query asks for a non-positive K
	ErrInvalidTopK = errors.New("top-k must be positive")

	// ErrRunNotFound is returned when no snapshot exists for a run ID
	ErrRunNotFound = errors.New("run not found")

	// ErrCategoryNotFound is returned when a run has no ranking for a category
	ErrCategoryNotFound = errors.New("category not found")

	// ErrGroupNotFound is returned when a run has no group with the given ID
	ErrGroupNotFound = errors.New("product group not found")

	// ErrSourceFailure is returned when a raw listing source cannot be fetched
	ErrSourceFailure = errors.New("listing source request failed")

	// ErrSnapshotMiss is returned when a snapshot store has no entry for a key
	ErrSnapshotMiss = errors.New("snapshot miss")

	// ErrInvalidConfig is returned when pipeline configuration is inconsistent
	ErrInvalidConfig = errors.New("invalid pipeline configuration")
)

// Rejection reasons reported in run reports
const (
	ReasonMissingRequiredField = "MissingRequiredField"
	ReasonUnparsablePrice      = "UnparsablePrice"
)

// RejectionError describes why the normalizer rejected a raw record.
// It unwraps to ErrMissingRequiredField or ErrUnparsablePrice.
type RejectionError struct {
	Reason string
	Field  string
	Detail string
}

func (e *RejectionError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("%s: %s", e.Reason, e.Field)
	}
	return fmt.Sprintf("%s: %s (%s)", e.Reason, e.Field, e.Detail)
}

func (e *RejectionError) Unwrap() error {
	switch e.Reason {
	case ReasonMissingRequiredField:
		return ErrMissingRequiredField
	case ReasonUnparsablePrice:
		return ErrUnparsablePrice
	}
	return nil
}
