// Package pgstore is the PostgreSQL-backed record store for distribution
// scopes. Each Update runs inside one transaction with the progress row
// locked, so concurrent calls against the same scope serialize, and an
// optimistic cursor guard rejects a commit whose snapshot went stale anyway.
package pgstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/gagliardetto/solana-go"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/TokenHarvester/investor-fee-distributor/pkg/distributor"
)

type Config struct {
	Logger *slog.Logger
	Pool   *pgxpool.Pool
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Pool == nil {
		return errors.New("postgres pool is required")
	}
	return nil
}

type Store struct {
	log  *slog.Logger
	pool *pgxpool.Pool
}

func New(cfg Config) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Store{log: cfg.Logger, pool: cfg.Pool}, nil
}

// Ping reports storage liveness, for readiness probes.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Store) CreateScope(ctx context.Context, policy distributor.Policy, progress distributor.Progress) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	_, err = tx.Exec(ctx, `
		INSERT INTO distribution_policies (
			vault, quote_mint, creator_wallet, creator_ata, treasury, treasury_authority,
			total_investor_allocation, investor_fee_share_bps, daily_cap_lamports, min_payout_lamports
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		policy.Vault.String(),
		policy.QuoteMint.String(),
		policy.CreatorWallet.String(),
		policy.CreatorATA.String(),
		policy.Treasury.String(),
		policy.TreasuryAuthority.String(),
		int64(policy.TotalInvestorAllocation),
		int16(policy.InvestorFeeShareBps),
		int64(policy.DailyCapLamports),
		int64(policy.MinPayoutLamports),
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return distributor.ErrScopeExists
		}
		return fmt.Errorf("failed to insert policy: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO distribution_progress (
			vault, last_distribution_ts, current_day_claimed, current_day_distributed_investors,
			current_day_distributed_creator, carry_over_dust, pagination_cursor, day_completed, total_investors
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		progress.Vault.String(),
		progress.LastDistributionTS,
		int64(progress.CurrentDayClaimed),
		int64(progress.CurrentDayDistributedInvestors),
		int64(progress.CurrentDayDistributedCreator),
		int64(progress.CarryOverDust),
		int64(progress.PaginationCursor),
		progress.DayCompleted,
		int64(progress.TotalInvestors),
	)
	if err != nil {
		return fmt.Errorf("failed to insert progress: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO token_accounts (address, balance, authority) VALUES ($1, 0, $2)
		ON CONFLICT (address) DO UPDATE SET authority = EXCLUDED.authority`,
		policy.Treasury.String(), policy.TreasuryAuthority.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to create treasury account: %w", err)
	}

	return tx.Commit(ctx)
}

func (s *Store) Scope(ctx context.Context, vault solana.PublicKey) (distributor.Policy, distributor.Progress, error) {
	policy, err := scanPolicy(ctx, s.pool, vault)
	if err != nil {
		return distributor.Policy{}, distributor.Progress{}, err
	}
	progress, err := scanProgress(ctx, s.pool, vault, false)
	if err != nil {
		return distributor.Policy{}, distributor.Progress{}, err
	}
	return policy, progress, nil
}

func (s *Store) Update(ctx context.Context, vault solana.PublicKey, fn func(tx distributor.Tx, policy distributor.Policy, progress distributor.Progress) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	policy, err := scanPolicy(ctx, tx, vault)
	if err != nil {
		return err
	}
	progress, err := scanProgress(ctx, tx, vault, true)
	if err != nil {
		return err
	}
	cursorAtRead := progress.PaginationCursor

	ptx := &pgTx{ctx: ctx, tx: tx}
	if err := fn(ptx, policy, progress); err != nil {
		return err
	}

	if ptx.progressSet {
		p := ptx.progress
		tag, err := tx.Exec(ctx, `
			UPDATE distribution_progress SET
				last_distribution_ts = $1,
				current_day_claimed = $2,
				current_day_distributed_investors = $3,
				current_day_distributed_creator = $4,
				carry_over_dust = $5,
				pagination_cursor = $6,
				day_completed = $7,
				updated_at = now()
			WHERE vault = $8 AND pagination_cursor = $9`,
			p.LastDistributionTS,
			int64(p.CurrentDayClaimed),
			int64(p.CurrentDayDistributedInvestors),
			int64(p.CurrentDayDistributedCreator),
			int64(p.CarryOverDust),
			int64(p.PaginationCursor),
			p.DayCompleted,
			vault.String(),
			int64(cursorAtRead),
		)
		if err != nil {
			return fmt.Errorf("failed to update progress: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return distributor.ErrStaleProgress
		}
	}

	return tx.Commit(ctx)
}

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func scanPolicy(ctx context.Context, q querier, vault solana.PublicKey) (distributor.Policy, error) {
	var (
		p                                              distributor.Policy
		vaultStr, quoteMint, creatorWallet, creatorATA string
		treasuryAddr, authority                        string
		totalAllocation, dailyCap, minPayout           int64
		feeShareBps                                    int16
	)
	err := q.QueryRow(ctx, `
		SELECT vault, quote_mint, creator_wallet, creator_ata, treasury, treasury_authority,
			total_investor_allocation, investor_fee_share_bps, daily_cap_lamports, min_payout_lamports
		FROM distribution_policies WHERE vault = $1`,
		vault.String(),
	).Scan(&vaultStr, &quoteMint, &creatorWallet, &creatorATA, &treasuryAddr, &authority,
		&totalAllocation, &feeShareBps, &dailyCap, &minPayout)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return distributor.Policy{}, distributor.ErrScopeNotFound
		}
		return distributor.Policy{}, fmt.Errorf("failed to load policy: %w", err)
	}

	for dst, src := range map[*solana.PublicKey]string{
		&p.Vault: vaultStr, &p.QuoteMint: quoteMint, &p.CreatorWallet: creatorWallet,
		&p.CreatorATA: creatorATA, &p.Treasury: treasuryAddr, &p.TreasuryAuthority: authority,
	} {
		key, err := solana.PublicKeyFromBase58(src)
		if err != nil {
			return distributor.Policy{}, fmt.Errorf("failed to parse stored key %q: %w", src, err)
		}
		*dst = key
	}
	p.TotalInvestorAllocation = uint64(totalAllocation)
	p.InvestorFeeShareBps = uint16(feeShareBps)
	p.DailyCapLamports = uint64(dailyCap)
	p.MinPayoutLamports = uint64(minPayout)
	return p, nil
}

func scanProgress(ctx context.Context, q querier, vault solana.PublicKey, forUpdate bool) (distributor.Progress, error) {
	query := `
		SELECT last_distribution_ts, current_day_claimed, current_day_distributed_investors,
			current_day_distributed_creator, carry_over_dust, pagination_cursor, day_completed, total_investors
		FROM distribution_progress WHERE vault = $1`
	if forUpdate {
		query += " FOR UPDATE"
	}

	var (
		p                                         distributor.Progress
		claimed, distInvestors, distCreator, dust int64
		cursor, totalInvestors                    int64
	)
	err := q.QueryRow(ctx, query, vault.String()).Scan(
		&p.LastDistributionTS, &claimed, &distInvestors, &distCreator, &dust,
		&cursor, &p.DayCompleted, &totalInvestors,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return distributor.Progress{}, distributor.ErrScopeNotFound
		}
		return distributor.Progress{}, fmt.Errorf("failed to load progress: %w", err)
	}
	p.Vault = vault
	p.CurrentDayClaimed = uint64(claimed)
	p.CurrentDayDistributedInvestors = uint64(distInvestors)
	p.CurrentDayDistributedCreator = uint64(distCreator)
	p.CarryOverDust = uint64(dust)
	p.PaginationCursor = uint32(cursor)
	p.TotalInvestors = uint32(totalInvestors)
	return p, nil
}

// pgTx adapts a pgx transaction to the distributor's mutation scope.
type pgTx struct {
	ctx         context.Context
	tx          pgx.Tx
	progress    distributor.Progress
	progressSet bool
}

func (t *pgTx) Balance(account solana.PublicKey) (uint64, error) {
	var balance int64
	err := t.tx.QueryRow(t.ctx,
		`SELECT balance FROM token_accounts WHERE address = $1`,
		account.String(),
	).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read balance: %w", err)
	}
	return uint64(balance), nil
}

func (t *pgTx) Credit(account solana.PublicKey, amount uint64) error {
	_, err := t.tx.Exec(t.ctx, `
		INSERT INTO token_accounts (address, balance) VALUES ($1, $2)
		ON CONFLICT (address) DO UPDATE SET balance = token_accounts.balance + EXCLUDED.balance`,
		account.String(), int64(amount),
	)
	if err != nil {
		return fmt.Errorf("failed to credit account: %w", err)
	}
	return nil
}

func (t *pgTx) Transfer(from, authority, to solana.PublicKey, amount uint64) error {
	var (
		balance        int64
		registeredAuth *string
	)
	err := t.tx.QueryRow(t.ctx,
		`SELECT balance, authority FROM token_accounts WHERE address = $1 FOR UPDATE`,
		from.String(),
	).Scan(&balance, &registeredAuth)
	if errors.Is(err, pgx.ErrNoRows) {
		return distributor.ErrInsufficientFunds
	}
	if err != nil {
		return fmt.Errorf("failed to lock source account: %w", err)
	}
	if registeredAuth != nil && *registeredAuth != authority.String() {
		return distributor.ErrUnauthorized
	}
	if uint64(balance) < amount {
		return distributor.ErrInsufficientFunds
	}

	if _, err := t.tx.Exec(t.ctx,
		`UPDATE token_accounts SET balance = balance - $1 WHERE address = $2`,
		int64(amount), from.String(),
	); err != nil {
		return fmt.Errorf("failed to debit source: %w", err)
	}
	return t.Credit(to, amount)
}

func (t *pgTx) SetProgress(progress distributor.Progress) error {
	t.progress = progress
	t.progressSet = true
	return nil
}
