package domain

import "errors"

// Sentinel errors shared across the core. Handlers wrap them with context;
// the HTTP error handler and control service map them to caller-visible
// rejections.
var (
	ErrNotFound              = errors.New("not found")
	ErrChargerOffline        = errors.New("charger offline")
	ErrChargerBusy           = errors.New("charger busy")
	ErrChargerDisconnected   = errors.New("charger disconnected")
	ErrCallTimeout           = errors.New("call timeout")
	ErrConcurrentTransaction = errors.New("connector already has an active session")
	ErrNoActiveTransaction   = errors.New("no active transaction")
	ErrAmbiguousTransaction  = errors.New("more than one active transaction")
	ErrInvalidCredentials    = errors.New("invalid credentials")
	ErrUnknownCharger        = errors.New("unknown charger")
)
