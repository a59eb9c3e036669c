// Package streamflow reads remaining locked balances from on-chain lock
// stream records. Only the fields the distributor needs are decoded: the
// record's discriminator region and the little-endian locked amount that
// follows it.
package streamflow

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gagliardetto/solana-go"
	solanarpc "github.com/gagliardetto/solana-go/rpc"

	"github.com/TokenHarvester/investor-fee-distributor/pkg/distributor"
	"github.com/TokenHarvester/investor-fee-distributor/pkg/retry"
)

// minStreamRecordLen covers the 8-byte discriminator region plus the locked
// amount field. Shorter records are malformed.
const minStreamRecordLen = 16

// lockedAmountOffset is where the remaining locked balance sits in the
// stream record.
const lockedAmountOffset = 8

// AccountFetcher is the subset of the Solana RPC client used by the reader.
type AccountFetcher interface {
	GetAccountInfoWithOpts(ctx context.Context, account solana.PublicKey, opts *solanarpc.GetAccountInfoOpts) (*solanarpc.GetAccountInfoResult, error)
}

type Config struct {
	Logger *slog.Logger
	RPC    AccountFetcher
	Retry  retry.Config
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.RPC == nil {
		return errors.New("rpc client is required")
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = retry.DefaultConfig()
	}
	return nil
}

// Reader implements distributor.LockOracle against live stream records.
type Reader struct {
	log *slog.Logger
	cfg Config
}

func NewReader(cfg Config) (*Reader, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Reader{log: cfg.Logger, cfg: cfg}, nil
}

// LockedAmount returns the investor's still-locked allocation at the given
// instant. A missing, unowned, or short record fails with
// distributor.ErrInvalidStreamAccount.
func (r *Reader) LockedAmount(ctx context.Context, stream solana.PublicKey, at time.Time) (uint64, error) {
	var result *solanarpc.GetAccountInfoResult
	err := retry.Do(ctx, r.cfg.Retry, func() error {
		var err error
		result, err = r.cfg.RPC.GetAccountInfoWithOpts(ctx, stream, &solanarpc.GetAccountInfoOpts{
			Commitment: solanarpc.CommitmentConfirmed,
		})
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("%w: fetch failed for %s: %v", distributor.ErrInvalidStreamAccount, stream, err)
	}
	if result == nil || result.Value == nil {
		return 0, fmt.Errorf("%w: account %s not found", distributor.ErrInvalidStreamAccount, stream)
	}

	data := result.Value.Data.GetBinary()
	locked, err := DecodeLockedAmount(data)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", distributor.ErrInvalidStreamAccount, stream, err)
	}

	r.log.Debug("streamflow: locked amount read",
		"stream", stream.String(),
		"locked", locked,
		"at", at.Unix(),
	)
	return locked, nil
}

// DecodeLockedAmount extracts the locked balance field from a raw stream
// record.
func DecodeLockedAmount(data []byte) (uint64, error) {
	if len(data) < minStreamRecordLen {
		return 0, fmt.Errorf("record too short: %d bytes", len(data))
	}
	return binary.LittleEndian.Uint64(data[lockedAmountOffset : lockedAmountOffset+8]), nil
}
