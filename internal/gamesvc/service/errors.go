package service

import "errors"

var (
	ErrGameNotFound       = errors.New("game not found")
	ErrCardNotFound       = errors.New("card not found")
	ErrAssignmentNotFound = errors.New("assignment not found")
	ErrSessionNotFound    = errors.New("session not found")
	ErrInvalidTransition  = errors.New("invalid game transition")
	ErrAlreadyDrawn       = errors.New("number already drawn")
	ErrOutOfRange         = errors.New("number out of range")
	ErrDomainExhausted    = errors.New("every number has been drawn")
	ErrCardTaken          = errors.New("card already assigned in this round")
	ErrInvalidPattern     = errors.New("invalid pattern")
	ErrForbidden          = errors.New("forbidden")
)
