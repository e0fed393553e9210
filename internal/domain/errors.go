package domain

import "errors"

var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")

	ErrRoomNotFound    = errors.New("room not found")
	ErrSessionNotFound = errors.New("session not found")

	ErrInvalidContent = errors.New("invalid message content")

	ErrSessionAlreadyActive  = errors.New("room already has an active session")
	ErrSessionAlreadyClaimed = errors.New("session already claimed")
	ErrSessionClosed         = errors.New("session already ended")
)
