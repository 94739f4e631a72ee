package model

import "errors"

// Common errors used across the application
var (
	// Identity errors
	ErrIdentityNotFound  = errors.New("identity not found")
	ErrIdentityExists    = errors.New("identity already exists")
	ErrIncorrectPassword = errors.New("incorrect password")
	ErrAlreadyActive     = errors.New("login already active")

	// Session errors
	ErrUnrecognizedSession = errors.New("unrecognized session")

	// World errors
	ErrWorldNotFound = errors.New("world not found")
	ErrNotInvited    = errors.New("user is not invited to world")

	// Persistence errors
	ErrBlobNotFound = errors.New("blob not found")

	// Protocol errors
	ErrMalformedPayload = errors.New("malformed message payload")

	// Coordinator errors
	ErrCoordinatorStopped = errors.New("coordinator stopped")
)
