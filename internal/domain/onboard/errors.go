package onboard

import (
	"errors"
	"fmt"
)

var (
	// ErrAuthentication covers invalid, expired or missing state tokens and identity mismatches.
	ErrAuthentication = errors.New("onboard: authentication failed")
	// ErrValidation indicates caller input validation errors.
	ErrValidation = errors.New("onboard: invalid request")
	// ErrNotFound signals an unknown group, channel or redemption code.
	ErrNotFound = errors.New("onboard: not found")
	// ErrCredentialInvalid means the platform rejected a stored access token permanently.
	ErrCredentialInvalid = errors.New("onboard: credential invalid")
	// ErrTransient marks network faults, timeouts and platform rate limiting.
	ErrTransient = errors.New("onboard: transient failure")
	// ErrConflict signals a redemption code already claimed.
	ErrConflict = errors.New("onboard: conflict")
)

var (
	ErrMissingCode      = fmt.Errorf("%w: authorization code missing", ErrAuthentication)
	ErrInvalidState     = fmt.Errorf("%w: state expired or invalid", ErrAuthentication)
	ErrIdentityMismatch = fmt.Errorf("%w: identity mismatch", ErrAuthentication)

	ErrInvalidQuantity  = fmt.Errorf("%w: quantity must be positive", ErrValidation)
	ErrInsufficientPool = fmt.Errorf("%w: quantity exceeds available subjects", ErrValidation)

	ErrGroupNotFound   = fmt.Errorf("%w: group", ErrNotFound)
	ErrChannelNotFound = fmt.Errorf("%w: channel", ErrNotFound)
	ErrCodeNotFound    = fmt.Errorf("%w: redemption code", ErrNotFound)
	ErrBatchNotFound   = fmt.Errorf("%w: batch", ErrNotFound)

	ErrCodeUsed = fmt.Errorf("%w: redemption code already used", ErrConflict)

	// ErrAlreadyMember is a per-candidate failure that leaves the credential intact.
	ErrAlreadyMember = errors.New("onboard: subject already a member")
	// ErrQueueFull is returned when the batch queue cannot accept more work.
	ErrQueueFull = fmt.Errorf("%w: batch queue full", ErrTransient)
)
