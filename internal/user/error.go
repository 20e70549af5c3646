package user

import "errors"

var (
	// -- Validation --
	ErrInvalidEmail = errors.New("invalid email address")
	ErrWeakPassword = errors.New("password must be at least 8 characters")

	// -- Auth --
	ErrEmailExists        = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrUserNotFound       = errors.New("user not found")

	// -- I/O --
	ErrFailedCreateUser = errors.New("failed to create user")
	ErrFailedGetUser    = errors.New("failed to get user")
)
