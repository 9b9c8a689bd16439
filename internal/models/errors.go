package models

import "errors"

var (
	ErrNotFound = errors.New("not found")

	ErrAuctionNotActive    = errors.New("auction is not active")
	ErrBidTooLow           = errors.New("bid amount is not above the current highest")
	ErrAuctionAlreadyEnded = errors.New("auction already ended")

	ErrAlreadyClaimed = errors.New("win already claimed")
	ErrNotClaimed     = errors.New("win has not been claimed")
	ErrAlreadyPaid    = errors.New("win already paid")
	ErrWindowExpired  = errors.New("payment window expired")
	ErrNotWinOwner    = errors.New("win belongs to another user")

	// ErrPolicyAlreadyApplied signals an idempotence-guard trip. Callers treat
	// it as a no-op, not a failure.
	ErrPolicyAlreadyApplied = errors.New("end policy already applied")

	ErrItemLockConflict = errors.New("item is locked by an auction")
)
