// services/errors.go
package services

import "errors"

// All of these are local, recoverable conditions returned to the caller.
// None of them should ever take down the manager or a scheduler callback.
var (
	ErrNotFound              = errors.New("bounty not found")
	ErrInvalidTransition     = errors.New("bounty is no longer active")
	ErrDuplicateActiveBounty = errors.New("target already has an active bounty")
	ErrNoActiveBounty        = errors.New("no active bounty on target")
	ErrUnauthorized          = errors.New("only the placer or an admin may remove a bounty")
	ErrInsufficientFunds     = errors.New("insufficient balance to fund bounty")
	ErrRewardTooLow          = errors.New("reward is below the minimum bounty amount")
	ErrPlaceCooldown         = errors.New("placer is still on bounty cooldown")
)
