package auth

import "errors"

var (
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrUserExists         = errors.New("user already exists")
	ErrUserNotFound       = errors.New("user not found")
	ErrProtectedUser      = errors.New("the primary admin account cannot be modified")
	ErrWeakPassword       = errors.New("password must be at least 4 characters")
	ErrInvalidUsername    = errors.New("username is required")
	ErrInvalidRole        = errors.New("invalid role")
	ErrSessionNotFound    = errors.New("session not found")
	ErrSessionExpired     = errors.New("session expired")
)
