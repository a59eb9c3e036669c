package distributor

import (
	"math"
	"math/bits"
)

// Payout is one scheduled investor payment within a page. Index addresses the
// page-local entry, not the global investor set.
type Payout struct {
	Index  int
	Amount uint64
}

// PageResult is the outcome of the pure payout calculation for one page.
type PageResult struct {
	Payouts          []Payout
	TotalLocked      uint64
	TotalDistributed uint64
	RemainingDust    uint64
}

// CalculatePage converts a page of locked amounts plus the scope policy and a
// progress snapshot into a payout schedule. It is a pure function: it never
// touches storage and never mutates its inputs.
//
// The per-investor weight uses the pre-dust distributable amount as its
// numerator base; carried dust only pads the hard-stop ceiling. Accumulated
// dust therefore never reaches investors and is ultimately swept to the
// creator via the day-close remainder. That mirrors the deployed program and
// is kept as-is.
func CalculatePage(lockedAmounts []uint64, policy Policy, progress Progress) (PageResult, error) {
	var totalLocked uint64
	for _, locked := range lockedAmounts {
		var ok bool
		totalLocked, ok = checkedAdd(totalLocked, locked)
		if !ok {
			return PageResult{}, ErrArithmeticOverflow
		}
	}

	// Nothing locked this page: a legitimate zero-distribution outcome, the
	// dust carry passes through untouched.
	if totalLocked == 0 {
		return PageResult{
			TotalLocked:   0,
			RemainingDust: progress.CarryOverDust,
		}, nil
	}

	fLockedBps, err := lockedFractionBps(totalLocked, policy.TotalInvestorAllocation)
	if err != nil {
		return PageResult{}, err
	}

	eligibleBps := min(uint64(policy.InvestorFeeShareBps), fLockedBps)

	investorFeeQuote, err := mulDiv(progress.CurrentDayClaimed, eligibleBps, BasisPointsDivisor)
	if err != nil {
		return PageResult{}, err
	}

	remainingCap := uint64(math.MaxUint64)
	if policy.DailyCapLamports > 0 {
		remainingCap = saturatingSub(policy.DailyCapLamports, progress.CurrentDayDistributedInvestors)
	}

	distributable := min(investorFeeQuote, remainingCap)

	available, ok := checkedAdd(distributable, progress.CarryOverDust)
	if !ok {
		return PageResult{}, ErrArithmeticOverflow
	}

	result := PageResult{
		TotalLocked:   totalLocked,
		RemainingDust: available,
	}

	for i, locked := range lockedAmounts {
		if locked == 0 {
			continue
		}

		weight, err := mulDiv(locked, BasisPointsDivisor, totalLocked)
		if err != nil {
			return PageResult{}, err
		}

		payout, err := mulDiv(distributable, weight, BasisPointsDivisor)
		if err != nil {
			return PageResult{}, err
		}

		// Below the dust floor: skip, residue stays in available.
		if payout < policy.MinPayoutLamports {
			continue
		}

		// Residual funds exhausted: hard stop for the rest of the page.
		if payout > available {
			break
		}

		available -= payout

		result.TotalDistributed, ok = checkedAdd(result.TotalDistributed, payout)
		if !ok {
			return PageResult{}, ErrArithmeticOverflow
		}
		result.Payouts = append(result.Payouts, Payout{Index: i, Amount: payout})
	}

	result.RemainingDust = available
	return result, nil
}

// lockedFractionBps computes floor(totalLocked * 10000 / y0), saturating at
// 10000. A zero baseline yields a zero fraction.
func lockedFractionBps(totalLocked, y0 uint64) (uint64, error) {
	if y0 == 0 {
		return 0, nil
	}
	fraction, err := mulDiv(totalLocked, BasisPointsDivisor, y0)
	if err != nil {
		return 0, err
	}
	return min(fraction, BasisPointsDivisor), nil
}

// mulDiv computes floor(a*b/den) through a 128-bit intermediate, failing with
// ErrArithmeticOverflow when the quotient does not fit back into 64 bits.
func mulDiv(a, b, den uint64) (uint64, error) {
	if den == 0 {
		return 0, ErrArithmeticOverflow
	}
	hi, lo := bits.Mul64(a, b)
	if hi >= den {
		return 0, ErrArithmeticOverflow
	}
	quo, _ := bits.Div64(hi, lo, den)
	return quo, nil
}

func checkedAdd(a, b uint64) (uint64, bool) {
	sum, carry := bits.Add64(a, b, 0)
	return sum, carry == 0
}

func saturatingSub(a, b uint64) uint64 {
	if b >= a {
		return 0
	}
	return a - b
}
