package service

import (
	"fmt"

	"github.com/google/uuid"
)

type ErrResourceNotFound struct {
	error
}

func NewErrResourceNotFound(id uuid.UUID, resourceType string) *ErrResourceNotFound {
	return &ErrResourceNotFound{fmt.Errorf("%s %s not found", resourceType, id)}
}

func NewErrSessionNotFound(id uuid.UUID) *ErrResourceNotFound {
	return NewErrResourceNotFound(id, "upload session")
}

func NewErrProjectNotFound(id uuid.UUID) *ErrResourceNotFound {
	return NewErrResourceNotFound(id, "project")
}

type ErrBatchNotFound struct {
	error
}

func NewErrBatchNotFound(sessionID uuid.UUID, batchNumber int) *ErrBatchNotFound {
	return &ErrBatchNotFound{fmt.Errorf("session %s has no batch %d", sessionID, batchNumber)}
}

type ErrInvalidBatchState struct {
	error
}

func NewErrInvalidBatchState(batchNumber int, status string) *ErrInvalidBatchState {
	return &ErrInvalidBatchState{fmt.Errorf("batch %d is in state %s", batchNumber, status)}
}

type ErrFileCorrupted struct {
	error
}

func NewErrFileCorrupted(message string) *ErrFileCorrupted {
	return &ErrFileCorrupted{fmt.Errorf("bad request: %s", message)}
}

type ErrTransaction struct {
	error
}

func NewErrTransaction(err error) *ErrTransaction {
	return &ErrTransaction{fmt.Errorf("transaction failed: %w", err)}
}
