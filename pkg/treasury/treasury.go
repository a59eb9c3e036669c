// Package treasury derives the per-vault treasury addresses and executes the
// signed balance moves out of them. The derived authority is the capability
// handle that scopes treasury spending to the distribution engine: the record
// store verifies it against the authority registered at initialize before
// permitting a transfer.
package treasury

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/gagliardetto/solana-go"

	"github.com/TokenHarvester/investor-fee-distributor/pkg/distributor"
)

// DeriveTreasury computes the treasury token account address for a vault.
func DeriveTreasury(programID, vault solana.PublicKey) (solana.PublicKey, error) {
	addr, _, err := solana.FindProgramAddress(
		[][]byte{[]byte(distributor.VaultSeed), vault[:], []byte(distributor.TreasurySeed)},
		programID,
	)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("failed to derive treasury: %w", err)
	}
	return addr, nil
}

// DeriveAuthority computes the treasury signing authority for a vault.
func DeriveAuthority(programID, vault solana.PublicKey) (solana.PublicKey, error) {
	addr, _, err := solana.FindProgramAddress(
		[][]byte{[]byte(distributor.VaultSeed), vault[:], []byte(distributor.TreasuryAuthoritySeed)},
		programID,
	)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("failed to derive treasury authority: %w", err)
	}
	return addr, nil
}

// Config configures the treasury executor.
type Config struct {
	Logger    *slog.Logger
	ProgramID solana.PublicKey
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.ProgramID.IsZero() {
		return errors.New("program id is required")
	}
	return nil
}

// Executor implements distributor.TransferExecutor over the record store's
// balance ledger.
type Executor struct {
	log *slog.Logger
	cfg Config
}

func NewExecutor(cfg Config) (*Executor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Executor{log: cfg.Logger, cfg: cfg}, nil
}

// Treasury returns the derived treasury and authority addresses for a vault.
func (e *Executor) Treasury(vault solana.PublicKey) (solana.PublicKey, solana.PublicKey, error) {
	treasuryAddr, err := DeriveTreasury(e.cfg.ProgramID, vault)
	if err != nil {
		return solana.PublicKey{}, solana.PublicKey{}, err
	}
	authority, err := DeriveAuthority(e.cfg.ProgramID, vault)
	if err != nil {
		return solana.PublicKey{}, solana.PublicKey{}, err
	}
	return treasuryAddr, authority, nil
}

// Transfer moves amount from the policy's treasury to dest within the call's
// commit scope. The authority is re-derived from the vault rather than taken
// from the policy record, so a tampered policy cannot redirect the signing
// capability.
func (e *Executor) Transfer(ctx context.Context, tx distributor.Tx, policy distributor.Policy, dest solana.PublicKey, amount uint64) error {
	authority, err := DeriveAuthority(e.cfg.ProgramID, policy.Vault)
	if err != nil {
		return err
	}
	if !authority.Equals(policy.TreasuryAuthority) {
		return distributor.ErrUnauthorized
	}

	if err := tx.Transfer(policy.Treasury, authority, dest, amount); err != nil {
		return err
	}

	e.log.Debug("treasury: transfer executed",
		"vault", policy.Vault.String(),
		"to", dest.String(),
		"amount", amount,
	)
	return nil
}
