package pgstore_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/require"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/TokenHarvester/investor-fee-distributor/pkg/distributor"
	pgstore "github.com/TokenHarvester/investor-fee-distributor/pkg/store/postgres"
	"github.com/TokenHarvester/investor-fee-distributor/pkg/testutil"
)

func startStore(t *testing.T) *pgstore.Store {
	t.Helper()
	if os.Getenv("SKIP_DOCKER_TESTS") != "" {
		t.Skip("docker tests disabled")
	}

	ctx := context.Background()
	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("test"),
		tcpostgres.WithUsername("test"),
		tcpostgres.WithPassword("test"),
		tcpostgres.BasicWaitStrategies(),
		tcpostgres.WithSQLDriver("pgx"),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		terminateCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = container.Terminate(terminateCtx)
	})

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	require.NoError(t, pgstore.RunMigrations(connStr))

	pool, err := pgstore.NewPool(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	store, err := pgstore.New(pgstore.Config{Logger: testutil.NewLogger(), Pool: pool})
	require.NoError(t, err)
	require.NoError(t, store.Ping(ctx))
	return store
}

func key(tag string) solana.PublicKey {
	var b [32]byte
	copy(b[:], tag)
	return solana.PublicKeyFromBytes(b[:])
}

func seedScope(t *testing.T, store *pgstore.Store, vault solana.PublicKey) (distributor.Policy, distributor.Progress) {
	t.Helper()
	policy := distributor.Policy{
		Vault:                   vault,
		QuoteMint:               key("quote-mint"),
		CreatorWallet:           key("creator"),
		CreatorATA:              key("creator-ata"),
		Treasury:                key("treasury-" + vault.String()[:8]),
		TreasuryAuthority:       key("authority"),
		TotalInvestorAllocation: 1_000_000,
		InvestorFeeShareBps:     8000,
		DailyCapLamports:        500_000,
		MinPayoutLamports:       1000,
	}
	progress := distributor.Progress{Vault: vault, TotalInvestors: 50}
	require.NoError(t, store.CreateScope(context.Background(), policy, progress))
	return policy, progress
}

func TestPostgresStore_Scopes(t *testing.T) {
	t.Parallel()

	store := startStore(t)
	ctx := context.Background()
	vault := key("vault-scopes")
	policy, progress := seedScope(t, store, vault)

	gotPolicy, gotProgress, err := store.Scope(ctx, vault)
	require.NoError(t, err)
	require.Equal(t, policy, gotPolicy)
	require.Equal(t, progress, gotProgress)

	require.ErrorIs(t, store.CreateScope(ctx, policy, progress), distributor.ErrScopeExists)

	_, _, err = store.Scope(ctx, key("missing"))
	require.ErrorIs(t, err, distributor.ErrScopeNotFound)
}

func TestPostgresStore_UpdateLifecycle(t *testing.T) {
	t.Parallel()

	store := startStore(t)
	ctx := context.Background()
	vault := key("vault-update")
	_, _ = seedScope(t, store, vault)
	dest := key("investor-ata")

	// One full page: credit the claim, pay an investor, advance the cursor.
	err := store.Update(ctx, vault, func(tx distributor.Tx, p distributor.Policy, pr distributor.Progress) error {
		if err := tx.Credit(p.Treasury, 100_000); err != nil {
			return err
		}
		if err := tx.Transfer(p.Treasury, p.TreasuryAuthority, dest, 40_000); err != nil {
			return err
		}
		pr.LastDistributionTS = 1_750_000_000
		pr.CurrentDayClaimed = 100_000
		pr.CurrentDayDistributedInvestors = 40_000
		pr.PaginationCursor = 25
		return tx.SetProgress(pr)
	})
	require.NoError(t, err)

	_, progress, err := store.Scope(ctx, vault)
	require.NoError(t, err)
	require.Equal(t, uint32(25), progress.PaginationCursor)
	require.Equal(t, uint64(100_000), progress.CurrentDayClaimed)
	require.Equal(t, uint64(40_000), progress.CurrentDayDistributedInvestors)

	err = store.Update(ctx, vault, func(tx distributor.Tx, p distributor.Policy, pr distributor.Progress) error {
		balance, err := tx.Balance(p.Treasury)
		require.NoError(t, err)
		require.Equal(t, uint64(60_000), balance)
		balance, err = tx.Balance(dest)
		require.NoError(t, err)
		require.Equal(t, uint64(40_000), balance)
		return nil
	})
	require.NoError(t, err)
}

func TestPostgresStore_UpdateRollsBackOnError(t *testing.T) {
	t.Parallel()

	store := startStore(t)
	ctx := context.Background()
	vault := key("vault-rollback")
	policy, _ := seedScope(t, store, vault)

	err := store.Update(ctx, vault, func(tx distributor.Tx, p distributor.Policy, pr distributor.Progress) error {
		require.NoError(t, tx.Credit(p.Treasury, 100_000))
		pr.PaginationCursor = 10
		require.NoError(t, tx.SetProgress(pr))
		return distributor.ErrArithmeticOverflow
	})
	require.ErrorIs(t, err, distributor.ErrArithmeticOverflow)

	_, progress, err := store.Scope(ctx, vault)
	require.NoError(t, err)
	require.Equal(t, uint32(0), progress.PaginationCursor)

	err = store.Update(ctx, vault, func(tx distributor.Tx, p distributor.Policy, pr distributor.Progress) error {
		balance, err := tx.Balance(policy.Treasury)
		require.NoError(t, err)
		require.Zero(t, balance)
		return nil
	})
	require.NoError(t, err)
}

func TestPostgresStore_TransferGuards(t *testing.T) {
	t.Parallel()

	store := startStore(t)
	ctx := context.Background()
	vault := key("vault-guards")
	_, _ = seedScope(t, store, vault)

	err := store.Update(ctx, vault, func(tx distributor.Tx, p distributor.Policy, pr distributor.Progress) error {
		return tx.Transfer(p.Treasury, key("impostor"), key("dest"), 1)
	})
	require.ErrorIs(t, err, distributor.ErrUnauthorized)

	err = store.Update(ctx, vault, func(tx distributor.Tx, p distributor.Policy, pr distributor.Progress) error {
		if err := tx.Credit(p.Treasury, 10); err != nil {
			return err
		}
		return tx.Transfer(p.Treasury, p.TreasuryAuthority, key("dest"), 11)
	})
	require.ErrorIs(t, err, distributor.ErrInsufficientFunds)
}
