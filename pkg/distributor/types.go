package distributor

import (
	"github.com/gagliardetto/solana-go"
)

const (
	// SecondsPerDay is the length of one distribution epoch.
	SecondsPerDay = 86_400

	// BasisPointsDivisor is the denominator for all bps arithmetic.
	BasisPointsDivisor = 10_000

	// MaxPageSize bounds how many investors a single distribute call may process.
	MaxPageSize = 50

	// DefaultMinPayoutLamports is the default per-investor dust floor
	// (0.001 SOL equivalent in quote lamports).
	DefaultMinPayoutLamports = 1_000_000
)

// Record seeds for derived addresses. The treasury authority seed doubles as
// the transfer signing capability tag.
const (
	VaultSeed             = "vault"
	PolicySeed            = "policy"
	ProgressSeed          = "progress"
	TreasurySeed          = "treasury"
	TreasuryAuthoritySeed = "investor_fee_pos_owner"
)

// Policy is the immutable per-scope distribution configuration. Written once
// at initialize and never mutated afterwards.
type Policy struct {
	// Vault scopes this policy. All derived record addresses hang off it.
	Vault solana.PublicKey

	// QuoteMint is the only asset this scope distributes.
	QuoteMint solana.PublicKey

	// CreatorWallet owns the remainder destination.
	CreatorWallet solana.PublicKey

	// CreatorATA receives the day-close remainder payout.
	CreatorATA solana.PublicKey

	// Treasury is the derived quote-token account funds are paid from.
	Treasury solana.PublicKey

	// TreasuryAuthority is the derived signing authority over Treasury.
	TreasuryAuthority solana.PublicKey

	// TotalInvestorAllocation is Y0, the baseline allocation minted at
	// genesis, used as the denominator of the locked-fraction calculation.
	TotalInvestorAllocation uint64

	// InvestorFeeShareBps caps the investor share of a day's claimed fees.
	// The effective share is min(this, locked fraction in bps).
	InvestorFeeShareBps uint16

	// DailyCapLamports caps per-day investor distributions. 0 means no cap.
	DailyCapLamports uint64

	// MinPayoutLamports is the per-investor dust floor. Payouts below it
	// are skipped and left in the dust carry.
	MinPayoutLamports uint64
}

// Progress is the sole cross-call state for a scope: the day/page lifecycle
// position. It is mutated exactly once per distribute call, at commit.
type Progress struct {
	Vault solana.PublicKey

	// LastDistributionTS is the unix timestamp the current day opened at.
	LastDistributionTS int64

	// CurrentDayClaimed is the quote amount claimed when the day opened.
	CurrentDayClaimed uint64

	// CurrentDayDistributedInvestors accumulates investor payouts this day.
	CurrentDayDistributedInvestors uint64

	// CurrentDayDistributedCreator is the remainder paid at day close.
	CurrentDayDistributedCreator uint64

	// CarryOverDust is the sub-floor residue carried between pages.
	CarryOverDust uint64

	// PaginationCursor is the next unprocessed investor index.
	PaginationCursor uint32

	// DayCompleted marks the day closed; no further pages until the gate
	// elapses.
	DayCompleted bool

	// TotalInvestors is the fixed investor set size for the scope.
	TotalInvestors uint32
}

// IsNewDay reports whether the 24h gate has elapsed at ts.
func (p *Progress) IsNewDay(ts int64) bool {
	return ts >= p.LastDistributionTS+SecondsPerDay
}

// StartNewDay resets all day-scoped fields. The claimed amount is recorded
// separately by the caller.
func (p *Progress) StartNewDay(ts int64) {
	p.LastDistributionTS = ts
	p.CurrentDayClaimed = 0
	p.CurrentDayDistributedInvestors = 0
	p.CurrentDayDistributedCreator = 0
	p.CarryOverDust = 0
	p.PaginationCursor = 0
	p.DayCompleted = false
}

// InvestorEntry is one caller-supplied investor in a page. Entries are
// ephemeral: the set and its ordering are fixed for the day, but the records
// themselves are never persisted by the distributor.
type InvestorEntry struct {
	// InvestorATA receives the investor's quote payout.
	InvestorATA solana.PublicKey

	// Stream references the external lock record for this investor.
	Stream solana.PublicKey
}
