// Package dammv2 claims accrued fees from the honorary DAMM v2 position of a
// distribution scope. The claim is valid only when it is denominated purely
// in the scope's quote asset: any base-token fee owed aborts the claim, and a
// pool that cannot guarantee quote-only accrual is rejected outright.
package dammv2

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"

	"github.com/gagliardetto/solana-go"
	solanarpc "github.com/gagliardetto/solana-go/rpc"

	"github.com/TokenHarvester/investor-fee-distributor/pkg/distributor"
	"github.com/TokenHarvester/investor-fee-distributor/pkg/retry"
)

// Position record layout: discriminator region, pool key, then the unclaimed
// base and quote fee counters.
const (
	positionPoolOffset     = 8
	positionBaseFeeOffset  = 40
	positionQuoteFeeOffset = 48
	minPositionRecordLen   = 56
)

// Pool record layout: discriminator region, token A and B mints, then the
// collect-fee mode byte.
const (
	poolTokenAMintOffset  = 8
	poolTokenBMintOffset  = 40
	poolCollectModeOffset = 72
	minPoolRecordLen      = 73
)

// collectFeeModeQuoteOnly is the pool mode under which fees accrue only in
// the quote token.
const collectFeeModeQuoteOnly = 1

// AccountFetcher is the subset of the Solana RPC client used by the claimer.
type AccountFetcher interface {
	GetAccountInfoWithOpts(ctx context.Context, account solana.PublicKey, opts *solanarpc.GetAccountInfoOpts) (*solanarpc.GetAccountInfoResult, error)
}

type Config struct {
	Logger    *slog.Logger
	RPC       AccountFetcher
	Pool      solana.PublicKey
	Position  solana.PublicKey
	QuoteMint solana.PublicKey
	Retry     retry.Config
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.RPC == nil {
		return errors.New("rpc client is required")
	}
	if cfg.Pool.IsZero() {
		return errors.New("pool is required")
	}
	if cfg.Position.IsZero() {
		return errors.New("position is required")
	}
	if cfg.QuoteMint.IsZero() {
		return errors.New("quote mint is required")
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = retry.DefaultConfig()
	}
	return nil
}

// Claimer implements distributor.FeeClaimer against a DAMM v2 position.
type Claimer struct {
	log *slog.Logger
	cfg Config
}

func NewClaimer(cfg Config) (*Claimer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Claimer{log: cfg.Logger, cfg: cfg}, nil
}

// ClaimFees validates the pool configuration, asserts the position owes no
// base-token fees, and returns the unclaimed quote amount. Any disallowed
// asset in the claim aborts before the distributor mutates anything.
func (c *Claimer) ClaimFees(ctx context.Context, vault solana.PublicKey) (uint64, error) {
	poolData, err := c.fetch(ctx, c.cfg.Pool)
	if err != nil {
		return 0, fmt.Errorf("%w: pool fetch failed: %v", distributor.ErrInvalidPoolConfiguration, err)
	}
	if err := c.validatePool(poolData); err != nil {
		return 0, err
	}

	positionData, err := c.fetch(ctx, c.cfg.Position)
	if err != nil {
		return 0, fmt.Errorf("%w: position fetch failed: %v", distributor.ErrInvalidPoolConfiguration, err)
	}
	if len(positionData) < minPositionRecordLen {
		return 0, fmt.Errorf("%w: position record too short: %d bytes", distributor.ErrInvalidPoolConfiguration, len(positionData))
	}

	pool := solana.PublicKeyFromBytes(positionData[positionPoolOffset : positionPoolOffset+32])
	if !pool.Equals(c.cfg.Pool) {
		return 0, fmt.Errorf("%w: position belongs to pool %s", distributor.ErrInvalidPoolConfiguration, pool)
	}

	baseFee := binary.LittleEndian.Uint64(positionData[positionBaseFeeOffset:])
	if baseFee != 0 {
		return 0, fmt.Errorf("%w: %d base lamports owed", distributor.ErrBaseFeesNotAllowed, baseFee)
	}

	quoteFee := binary.LittleEndian.Uint64(positionData[positionQuoteFeeOffset:])
	c.log.Info("dammv2: quote fees claimed",
		"vault", vault.String(),
		"position", c.cfg.Position.String(),
		"amount", quoteFee,
	)
	return quoteFee, nil
}

// validatePool requires quote-only fee accrual with the configured quote mint
// on the pool's quote side.
func (c *Claimer) validatePool(data []byte) error {
	if len(data) < minPoolRecordLen {
		return fmt.Errorf("%w: pool record too short: %d bytes", distributor.ErrInvalidPoolConfiguration, len(data))
	}
	if data[poolCollectModeOffset] != collectFeeModeQuoteOnly {
		return fmt.Errorf("%w: collect fee mode %d is not quote-only", distributor.ErrInvalidPoolConfiguration, data[poolCollectModeOffset])
	}
	quoteSide := solana.PublicKeyFromBytes(data[poolTokenBMintOffset : poolTokenBMintOffset+32])
	if !quoteSide.Equals(c.cfg.QuoteMint) {
		return fmt.Errorf("%w: pool quote side is %s", distributor.ErrInvalidQuoteMint, quoteSide)
	}
	return nil
}

func (c *Claimer) fetch(ctx context.Context, account solana.PublicKey) ([]byte, error) {
	var result *solanarpc.GetAccountInfoResult
	err := retry.Do(ctx, c.cfg.Retry, func() error {
		var err error
		result, err = c.cfg.RPC.GetAccountInfoWithOpts(ctx, account, &solanarpc.GetAccountInfoOpts{
			Commitment: solanarpc.CommitmentConfirmed,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	if result == nil || result.Value == nil {
		return nil, fmt.Errorf("account %s not found", account)
	}
	return result.Value.Data.GetBinary(), nil
}
