package distributor

import "errors"

// Error kinds surfaced by the distributor. Each is stable so operators can
// tell "fix your inputs" (validation) from "try again later" (sequencing)
// from "system invariant violated" (arithmetic, collaborator).
var (
	// ErrBaseFeesNotAllowed: base token fees detected in a claim; only
	// quote token fees are allowed.
	ErrBaseFeesNotAllowed = errors.New("base token fees detected - only quote token fees allowed")

	// ErrInvalidPoolConfiguration: the pool cannot guarantee quote-only fees.
	ErrInvalidPoolConfiguration = errors.New("invalid pool configuration - cannot guarantee quote-only fees")

	// ErrInvalidQuoteMint: quote mint validation failed.
	ErrInvalidQuoteMint = errors.New("quote mint validation failed")

	// ErrTooSoonToDistribute: the 24 hour gate since the last distribution
	// has not elapsed (or the clock ran backwards mid-day).
	ErrTooSoonToDistribute = errors.New("must wait 24 hours since last distribution")

	// ErrDayAlreadyCompleted: this day's distribution already closed.
	ErrDayAlreadyCompleted = errors.New("distribution for this day already completed")

	// ErrInvalidPaginationCursor: the cursor is out of bounds or the caller's
	// view of it is stale.
	ErrInvalidPaginationCursor = errors.New("pagination cursor out of bounds")

	// ErrArithmeticOverflow: a widened fee computation could not be narrowed
	// safely.
	ErrArithmeticOverflow = errors.New("arithmetic overflow in fee calculation")

	// ErrNoLockedTokens: total locked amount is zero. Not a hard failure for
	// a page; surfaced only where an explicit check is requested.
	ErrNoLockedTokens = errors.New("total locked amount is zero - no investors to distribute to")

	// ErrInvalidPageSize: page size is zero, exceeds the maximum, or does not
	// match the supplied entry count.
	ErrInvalidPageSize = errors.New("invalid investor page size")

	// ErrDailyCapExceeded: a commit would breach the daily cap invariant.
	ErrDailyCapExceeded = errors.New("daily cap exceeded")

	// ErrInvalidStreamAccount: the lock record is malformed or unrecognized.
	ErrInvalidStreamAccount = errors.New("stream account invalid or not locked")

	// ErrInvalidInvestorATA: an investor destination does not match the
	// quote mint.
	ErrInvalidInvestorATA = errors.New("investor token account does not match expected quote mint")

	// ErrNotFirstPage: a new day can only be claimed from cursor zero.
	ErrNotFirstPage = errors.New("not the first page of the day - cannot claim fees")

	// ErrPaginationNotSequential: pages must be submitted in contiguous order.
	ErrPaginationNotSequential = errors.New("must complete previous page before starting new one")

	// ErrInvalidBasisPoints: basis points must be <= 10000.
	ErrInvalidBasisPoints = errors.New("invalid basis points value - must be <= 10000")
)

// Storage and transfer boundary errors.
var (
	// ErrScopeNotFound: no policy/progress records exist for the vault.
	ErrScopeNotFound = errors.New("distribution scope not found")

	// ErrScopeExists: the vault was already initialized.
	ErrScopeExists = errors.New("distribution scope already initialized")

	// ErrStaleProgress: another call committed against the same progress
	// record first.
	ErrStaleProgress = errors.New("progress record changed since read")

	// ErrInsufficientFunds: a transfer exceeds the source balance.
	ErrInsufficientFunds = errors.New("insufficient funds for transfer")

	// ErrUnauthorized: the supplied authority is not the registered signing
	// capability for the source account.
	ErrUnauthorized = errors.New("authority does not control source account")
)

// ErrorClass buckets error kinds for operators.
type ErrorClass string

const (
	ClassValidation   ErrorClass = "validation"
	ClassSequencing   ErrorClass = "sequencing"
	ClassArithmetic   ErrorClass = "arithmetic"
	ClassCollaborator ErrorClass = "collaborator"
	ClassInternal     ErrorClass = "internal"
)

// Classify maps an error to its operator-facing class.
func Classify(err error) ErrorClass {
	switch {
	case errors.Is(err, ErrInvalidPageSize),
		errors.Is(err, ErrInvalidBasisPoints),
		errors.Is(err, ErrInvalidInvestorATA),
		errors.Is(err, ErrScopeExists),
		errors.Is(err, ErrScopeNotFound):
		return ClassValidation
	case errors.Is(err, ErrTooSoonToDistribute),
		errors.Is(err, ErrDayAlreadyCompleted),
		errors.Is(err, ErrNotFirstPage),
		errors.Is(err, ErrPaginationNotSequential),
		errors.Is(err, ErrInvalidPaginationCursor),
		errors.Is(err, ErrStaleProgress):
		return ClassSequencing
	case errors.Is(err, ErrArithmeticOverflow),
		errors.Is(err, ErrDailyCapExceeded):
		return ClassArithmetic
	case errors.Is(err, ErrBaseFeesNotAllowed),
		errors.Is(err, ErrInvalidPoolConfiguration),
		errors.Is(err, ErrInvalidQuoteMint),
		errors.Is(err, ErrInvalidStreamAccount),
		errors.Is(err, ErrInsufficientFunds),
		errors.Is(err, ErrUnauthorized):
		return ClassCollaborator
	default:
		return ClassInternal
	}
}
