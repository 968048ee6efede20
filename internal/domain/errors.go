package domain

import "errors"

var (
	ErrNotFound            = errors.New("not found")
	ErrValidation          = errors.New("signal rejected by risk checks")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrNoPrice             = errors.New("no price available")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrContextDone         = errors.New("context cancelled")
)
