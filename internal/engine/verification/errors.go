package verification

import "errors"

var (
	ErrMemberNotFound       = errors.New("member not found")
	ErrAlreadyVerified      = errors.New("member is already verified")
	ErrAlreadyRejected      = errors.New("member is already rejected")
	ErrNotPending           = errors.New("member is not pending verification")
	ErrNotRejected          = errors.New("member is not in rejected state")
	ErrCannotRejectVerified = errors.New("cannot reject a verified member")

	ErrInsufficientPrivilege = errors.New("insufficient privilege for this transition")
	ErrReasonRequired        = errors.New("rejection reason is required")
	ErrBatchTooLarge         = errors.New("bulk approve batch exceeds the allowed size")
	ErrConfirmationMismatch  = errors.New("confirmation token does not match")
	ErrNegativeCounter       = errors.New("counter value must be non-negative")
)
