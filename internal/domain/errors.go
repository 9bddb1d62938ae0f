package domain

import "errors"

var (
	ErrKeyNotFound      = errors.New("key not found")
	ErrNotAuthenticated = errors.New("not authenticated")
	ErrInvalidWeight    = errors.New("weight must be greater than zero")
	ErrInvalidWasteType = errors.New("unknown waste type")
	ErrTokenMismatch    = errors.New("token holder does not match profile")
)
