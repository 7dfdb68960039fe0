package domain

import "errors"

var (
	ErrNotFound           = errors.New("not found")
	ErrAlreadyExists      = errors.New("already exists")
	ErrMarketNotOpen      = errors.New("market not open")
	ErrAlreadyResolved    = errors.New("market already resolved")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrQuotaExceeded      = errors.New("generation quota exceeded")
	ErrEmptyGeneration    = errors.New("generation returned no candidates")
	ErrLockHeld           = errors.New("lock already held")
	ErrResolutionInFlight = errors.New("resolution already in flight")
	ErrTooMuchEvidence    = errors.New("evidence limit reached")
	ErrPinUnavailable     = errors.New("content store unavailable")
	ErrAlreadyDistributed = errors.New("rewards already distributed")
)
