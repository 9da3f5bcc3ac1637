package store

import "errors"

var (
	ErrTicketNotFound   = errors.New("ticket not found")
	ErrLocationNotFound = errors.New("location not found")
	ErrProfileNotFound  = errors.New("profile not found")
	ErrAccountNotFound  = errors.New("account not found")
	ErrInvalidState     = errors.New("invalid ticket state")
	ErrNoWaiting        = errors.New("no customers waiting")
	ErrNoServing        = errors.New("no ticket being served")
	ErrServingSlotTaken = errors.New("another ticket is already being served at this location")
	ErrDuplicateTicket  = errors.New("duplicate ticket id")
	ErrNotTicketOwner   = errors.New("ticket belongs to another user")
	ErrEmailTaken       = errors.New("email already registered")
)
