package domain

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrLockHeld      = errors.New("lock already held")

	// Quorum validation.
	ErrInvalidWeights       = errors.New("weights must sum to 100")
	ErrDuplicateAgent       = errors.New("duplicate agent")
	ErrQuorumSizeOutOfRange = errors.New("quorum size out of range")

	// Governance.
	ErrNotEligibleVoter       = errors.New("agent not eligible to vote")
	ErrAlreadyVoted           = errors.New("agent already voted")
	ErrVotingWindowClosed     = errors.New("voting window closed")
	ErrExecutionWindowExpired = errors.New("execution window expired")
	ErrProposalNotApproved    = errors.New("proposal not approved")
	ErrAlreadyExecuted        = errors.New("proposal already executed")

	// Trading.
	ErrMarketGraduated        = errors.New("market graduated")
	ErrBelowMinimumPurchase   = errors.New("below minimum purchase")
	ErrSlippageExceeded       = errors.New("slippage bound exceeded")
	ErrInsufficientTokensHeld = errors.New("insufficient tokens held")
	ErrCurveSupplyExhausted   = errors.New("curve supply exhausted")
	ErrInsufficientReserve    = errors.New("insufficient market reserve")
	ErrReservedAccount        = errors.New("reserved ledger account")
	ErrInsufficientTreasury   = errors.New("insufficient treasury balance")

	// Arithmetic.
	ErrArithmeticOverflow = errors.New("arithmetic overflow")
)
