package service

import "errors"

var (
	// ErrConfiguration indica un secreto o llave ausente. Es fatal y nunca se reintenta.
	ErrConfiguration = errors.New("configuration error")
	// ErrUnauthenticated cubre cualquier defecto de token; no distingue la causa.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrNotFound se usa tambien cuando el recurso existe en otro tenant.
	ErrNotFound             = errors.New("not found")
	ErrOrganizationNotFound = errors.New("organization not found")
	ErrRateLimited          = errors.New("rate limited")
	ErrInvalidInput         = errors.New("invalid input")
	ErrInvalidEmail         = errors.New("invalid email")
	ErrEmailTaken           = errors.New("email already registered")
	ErrUserNotFound         = errors.New("user not found")
)
