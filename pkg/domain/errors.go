package domain

import "errors"

var (
	ErrInvalidPlan        = errors.New("invalid plan")
	ErrExecutionNotFound  = errors.New("execution not found")
	ErrTerminalState      = errors.New("execution already in terminal state")
	ErrCapabilityExists   = errors.New("capability already registered")
	ErrCapabilityNotFound = errors.New("capability not found")
	ErrPoolFull           = errors.New("worker pool queue is full")
	ErrPoolStopped        = errors.New("worker pool is stopped")
)
