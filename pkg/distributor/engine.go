package distributor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/jonboulle/clockwork"

	"github.com/TokenHarvester/investor-fee-distributor/pkg/metrics"
)

// Store is the durable keyed record store holding Policy and Progress per
// scope. Update runs fn against a locked view of the scope and commits all of
// fn's mutations atomically, or none of them.
type Store interface {
	CreateScope(ctx context.Context, policy Policy, progress Progress) error
	Scope(ctx context.Context, vault solana.PublicKey) (Policy, Progress, error)
	Update(ctx context.Context, vault solana.PublicKey, fn func(tx Tx, policy Policy, progress Progress) error) error
}

// Tx is the per-call mutation scope handed to Store.Update callbacks.
type Tx interface {
	Balance(account solana.PublicKey) (uint64, error)
	Credit(account solana.PublicKey, amount uint64) error
	Transfer(from, authority, to solana.PublicKey, amount uint64) error
	SetProgress(progress Progress) error
}

// FeeClaimer claims accrued quote fees from the external fee position. It
// must guarantee the returned amount is denominated purely in the scope's
// quote asset.
type FeeClaimer interface {
	ClaimFees(ctx context.Context, vault solana.PublicKey) (uint64, error)
}

// LockOracle reads the amount of an investor's allocation still time-locked
// at a given instant.
type LockOracle interface {
	LockedAmount(ctx context.Context, stream solana.PublicKey, at time.Time) (uint64, error)
}

// TransferExecutor performs signed balance moves out of a scope's treasury
// and exposes the derived treasury addresses for a vault.
type TransferExecutor interface {
	Treasury(vault solana.PublicKey) (treasury, authority solana.PublicKey, err error)
	Transfer(ctx context.Context, tx Tx, policy Policy, dest solana.PublicKey, amount uint64) error
}

// Config configures the distribution engine.
type Config struct {
	Logger     *slog.Logger
	Clock      clockwork.Clock
	Store      Store
	Claimer    FeeClaimer
	LockOracle LockOracle
	Transfers  TransferExecutor
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Store == nil {
		return errors.New("store is required")
	}
	if cfg.Claimer == nil {
		return errors.New("fee claimer is required")
	}
	if cfg.LockOracle == nil {
		return errors.New("lock oracle is required")
	}
	if cfg.Transfers == nil {
		return errors.New("transfer executor is required")
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	return nil
}

// Engine owns the day/page distribution lifecycle. It is the only writer of
// Policy and Progress records.
type Engine struct {
	log   *slog.Logger
	clock clockwork.Clock
	cfg   Config
}

func New(cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Engine{
		log:   cfg.Logger,
		clock: cfg.Clock,
		cfg:   cfg,
	}, nil
}

// InitializeParams are the one-time setup inputs for a scope.
type InitializeParams struct {
	Vault                   solana.PublicKey
	QuoteMint               solana.PublicKey
	CreatorWallet           solana.PublicKey
	CreatorATA              solana.PublicKey
	TotalInvestorAllocation uint64
	InvestorFeeShareBps     uint16
	DailyCapLamports        uint64
	MinPayoutLamports       uint64
	TotalInvestors          uint32
}

// Initialize creates the Policy and Progress records for a scope. The
// progress timestamp starts at zero so the first distribute call can open a
// day immediately.
func (e *Engine) Initialize(ctx context.Context, params InitializeParams) (Policy, error) {
	if params.InvestorFeeShareBps > BasisPointsDivisor {
		return Policy{}, ErrInvalidBasisPoints
	}

	treasuryAddr, authority, err := e.cfg.Transfers.Treasury(params.Vault)
	if err != nil {
		return Policy{}, fmt.Errorf("failed to derive treasury for vault %s: %w", params.Vault, err)
	}

	minPayout := params.MinPayoutLamports
	if minPayout == 0 {
		minPayout = DefaultMinPayoutLamports
	}

	policy := Policy{
		Vault:                   params.Vault,
		QuoteMint:               params.QuoteMint,
		CreatorWallet:           params.CreatorWallet,
		CreatorATA:              params.CreatorATA,
		Treasury:                treasuryAddr,
		TreasuryAuthority:       authority,
		TotalInvestorAllocation: params.TotalInvestorAllocation,
		InvestorFeeShareBps:     params.InvestorFeeShareBps,
		DailyCapLamports:        params.DailyCapLamports,
		MinPayoutLamports:       minPayout,
	}
	progress := Progress{
		Vault:          params.Vault,
		TotalInvestors: params.TotalInvestors,
	}

	if err := e.cfg.Store.CreateScope(ctx, policy, progress); err != nil {
		return Policy{}, err
	}

	e.log.Info("distributor: scope initialized",
		"vault", params.Vault.String(),
		"quote_mint", params.QuoteMint.String(),
		"treasury", treasuryAddr.String(),
		"total_investors", params.TotalInvestors,
		"investor_fee_share_bps", params.InvestorFeeShareBps,
	)
	return policy, nil
}

// DistributeRequest is one permissionless page submission. StartCursor is the
// caller's view of the pagination cursor; a stale value is rejected so a
// retried call can never double-pay.
type DistributeRequest struct {
	PageSize    int
	StartCursor uint32
	Investors   []InvestorEntry
}

// DistributeResult reports what one distribute call did.
type DistributeResult struct {
	NewDay           bool
	ClaimedAmount    uint64
	PageStart        uint32
	PageEnd          uint32
	InvestorsPaid    int
	TotalDistributed uint64
	RemainingDust    uint64
	DayCompleted     bool
	CreatorPayout    uint64
}

// Distribute processes one page of the investor set for the vault's current
// day, opening a new day first when the 24h gate has elapsed. All Progress
// mutations and balance moves commit atomically at the end of the call; any
// failure leaves the scope untouched.
func (e *Engine) Distribute(ctx context.Context, vault solana.PublicKey, req DistributeRequest) (*DistributeResult, error) {
	if req.PageSize <= 0 || req.PageSize > MaxPageSize {
		metrics.DistributeCallsTotal.WithLabelValues("rejected").Inc()
		return nil, ErrInvalidPageSize
	}

	now := e.clock.Now().UTC()
	currentTS := now.Unix()

	var result DistributeResult
	err := e.cfg.Store.Update(ctx, vault, func(tx Tx, policy Policy, progress Progress) error {
		res, err := e.distributePage(ctx, tx, policy, progress, req, now, currentTS)
		if err != nil {
			return err
		}
		result = *res
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrStaleProgress) {
			// Lost the commit race against a concurrent call for the same
			// scope; surfaces as a cursor mismatch to the caller.
			err = fmt.Errorf("%w: %v", ErrInvalidPaginationCursor, err)
		}
		metrics.DistributeCallsTotal.WithLabelValues("error").Inc()
		e.log.Warn("distributor: distribute failed",
			"vault", vault.String(),
			"class", string(Classify(err)),
			"error", err,
		)
		return nil, err
	}

	metrics.DistributeCallsTotal.WithLabelValues("success").Inc()
	metrics.InvestorsPaidTotal.Add(float64(result.InvestorsPaid))
	metrics.LamportsDistributedTotal.WithLabelValues("investor").Add(float64(result.TotalDistributed))
	if result.CreatorPayout > 0 {
		metrics.LamportsDistributedTotal.WithLabelValues("creator").Add(float64(result.CreatorPayout))
	}

	e.log.Info("distributor: page processed",
		"vault", vault.String(),
		"page_start", result.PageStart,
		"page_end", result.PageEnd,
		"investors_paid", result.InvestorsPaid,
		"total_distributed", result.TotalDistributed,
		"day_completed", result.DayCompleted,
	)
	return &result, nil
}

func (e *Engine) distributePage(
	ctx context.Context,
	tx Tx,
	policy Policy,
	progress Progress,
	req DistributeRequest,
	now time.Time,
	currentTS int64,
) (*DistributeResult, error) {
	result := &DistributeResult{}

	if progress.IsNewDay(currentTS) {
		// A new day may only open from an idle scope: either nothing was
		// processed yet, or the previous day fully completed. A mid-page
		// reset is forbidden.
		if progress.PaginationCursor != 0 && !progress.DayCompleted {
			return nil, ErrNotFirstPage
		}

		claimStart := e.clock.Now()
		claimed, err := e.cfg.Claimer.ClaimFees(ctx, policy.Vault)
		if err != nil {
			return nil, fmt.Errorf("fee claim failed: %w", err)
		}
		metrics.ClaimDuration.Observe(e.clock.Since(claimStart).Seconds())

		progress.StartNewDay(currentTS)
		progress.CurrentDayClaimed = claimed
		if err := tx.Credit(policy.Treasury, claimed); err != nil {
			return nil, fmt.Errorf("failed to credit treasury: %w", err)
		}

		result.NewDay = true
		result.ClaimedAmount = claimed
		e.log.Info("distributor: day opened",
			"vault", policy.Vault.String(),
			"claimed", claimed,
			"timestamp", currentTS,
		)
	} else {
		if progress.DayCompleted {
			return nil, ErrDayAlreadyCompleted
		}
		if currentTS < progress.LastDistributionTS {
			return nil, ErrTooSoonToDistribute
		}
	}

	start := progress.PaginationCursor
	if start >= progress.TotalInvestors {
		return nil, ErrInvalidPaginationCursor
	}
	end := start + uint32(req.PageSize)
	if end > progress.TotalInvestors {
		end = progress.TotalInvestors
	}

	// Reject stale retries: the caller's cursor must match stored progress.
	if req.StartCursor != start {
		return nil, ErrInvalidPaginationCursor
	}
	if len(req.Investors) != int(end-start) {
		return nil, fmt.Errorf("%w: page spans %d investors, got %d entries", ErrInvalidPageSize, end-start, len(req.Investors))
	}

	lockedAmounts := make([]uint64, len(req.Investors))
	for i, entry := range req.Investors {
		locked, err := e.cfg.LockOracle.LockedAmount(ctx, entry.Stream, now)
		if err != nil {
			return nil, fmt.Errorf("failed to read lock record %s: %w", entry.Stream, err)
		}
		lockedAmounts[i] = locked
	}

	page, err := CalculatePage(lockedAmounts, policy, progress)
	if err != nil {
		return nil, err
	}

	for _, payout := range page.Payouts {
		dest := req.Investors[payout.Index].InvestorATA
		if err := e.cfg.Transfers.Transfer(ctx, tx, policy, dest, payout.Amount); err != nil {
			return nil, fmt.Errorf("investor payout to %s failed: %w", dest, err)
		}
	}

	distributed, ok := checkedAdd(progress.CurrentDayDistributedInvestors, page.TotalDistributed)
	if !ok {
		return nil, ErrArithmeticOverflow
	}
	if policy.DailyCapLamports > 0 && distributed > policy.DailyCapLamports {
		return nil, ErrDailyCapExceeded
	}
	progress.CurrentDayDistributedInvestors = distributed
	progress.CarryOverDust = page.RemainingDust
	progress.PaginationCursor = end

	result.PageStart = start
	result.PageEnd = end
	result.InvestorsPaid = len(page.Payouts)
	result.TotalDistributed = page.TotalDistributed
	result.RemainingDust = page.RemainingDust

	if end == progress.TotalInvestors {
		creatorPaid, err := e.payCreatorRemainder(ctx, tx, policy, progress)
		if err != nil {
			return nil, err
		}
		progress.CurrentDayDistributedCreator = creatorPaid
		progress.DayCompleted = true
		result.DayCompleted = true
		result.CreatorPayout = creatorPaid
		e.log.Info("distributor: day closed",
			"vault", policy.Vault.String(),
			"creator", policy.CreatorWallet.String(),
			"creator_payout", creatorPaid,
			"day_timestamp", progress.LastDistributionTS,
		)
	}

	metrics.PagesProcessedTotal.Inc()
	return result, tx.SetProgress(progress)
}

// payCreatorRemainder sends whatever the investor set did not absorb to the
// creator destination, bounded by the treasury balance. A zero remainder
// still closes the day.
func (e *Engine) payCreatorRemainder(ctx context.Context, tx Tx, policy Policy, progress Progress) (uint64, error) {
	balance, err := tx.Balance(policy.Treasury)
	if err != nil {
		return 0, fmt.Errorf("failed to read treasury balance: %w", err)
	}
	if balance == 0 {
		return 0, nil
	}

	remainder := saturatingSub(progress.CurrentDayClaimed, progress.CurrentDayDistributedInvestors)
	amount := min(remainder, balance)
	if amount == 0 {
		return 0, nil
	}

	if err := e.cfg.Transfers.Transfer(ctx, tx, policy, policy.CreatorATA, amount); err != nil {
		return 0, fmt.Errorf("creator payout failed: %w", err)
	}
	return amount, nil
}
