package services

import "errors"

var (
	ErrPhoneNotVerified   = errors.New("phone number has not been verified")
	ErrAlreadyRegistered  = errors.New("phone number already registered")
	ErrInvalidCredentials = errors.New("invalid phone number or password")
	ErrUserNotFound       = errors.New("user not found")
	ErrInternal           = errors.New("internal server error")
)
