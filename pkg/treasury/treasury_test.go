package treasury

import (
	"context"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/require"

	"github.com/TokenHarvester/investor-fee-distributor/pkg/distributor"
	"github.com/TokenHarvester/investor-fee-distributor/pkg/testutil"
)

type mockTx struct {
	TransferFunc func(from, authority, to solana.PublicKey, amount uint64) error
}

func (m *mockTx) Balance(account solana.PublicKey) (uint64, error) { return 0, nil }
func (m *mockTx) Credit(account solana.PublicKey, amount uint64) error {
	return nil
}
func (m *mockTx) Transfer(from, authority, to solana.PublicKey, amount uint64) error {
	return m.TransferFunc(from, authority, to, amount)
}
func (m *mockTx) SetProgress(progress distributor.Progress) error { return nil }

func TestTreasury_Derivation(t *testing.T) {
	t.Parallel()

	programID := solana.PublicKey{1}
	vault := solana.PublicKey{2}

	treasuryAddr, err := DeriveTreasury(programID, vault)
	require.NoError(t, err)
	authority, err := DeriveAuthority(programID, vault)
	require.NoError(t, err)
	require.NotEqual(t, treasuryAddr, authority)

	// Derivation is deterministic per vault and distinct across vaults.
	again, err := DeriveTreasury(programID, vault)
	require.NoError(t, err)
	require.Equal(t, treasuryAddr, again)

	other, err := DeriveTreasury(programID, solana.PublicKey{3})
	require.NoError(t, err)
	require.NotEqual(t, treasuryAddr, other)
}

func TestTreasury_Executor_Transfer(t *testing.T) {
	t.Parallel()

	programID := solana.PublicKey{1}
	vault := solana.PublicKey{2}
	dest := solana.PublicKey{9}

	e, err := NewExecutor(Config{Logger: testutil.NewLogger(), ProgramID: programID})
	require.NoError(t, err)

	treasuryAddr, authority, err := e.Treasury(vault)
	require.NoError(t, err)

	policy := distributor.Policy{
		Vault:             vault,
		Treasury:          treasuryAddr,
		TreasuryAuthority: authority,
	}

	var gotFrom, gotAuthority, gotTo solana.PublicKey
	var gotAmount uint64
	tx := &mockTx{
		TransferFunc: func(from, auth, to solana.PublicKey, amount uint64) error {
			gotFrom, gotAuthority, gotTo, gotAmount = from, auth, to, amount
			return nil
		},
	}

	require.NoError(t, e.Transfer(context.Background(), tx, policy, dest, 42))
	require.Equal(t, treasuryAddr, gotFrom)
	require.Equal(t, authority, gotAuthority)
	require.Equal(t, dest, gotTo)
	require.Equal(t, uint64(42), gotAmount)

	// A policy recording a foreign authority must not be signable.
	policy.TreasuryAuthority = solana.PublicKey{8}
	err = e.Transfer(context.Background(), tx, policy, dest, 1)
	require.ErrorIs(t, err, distributor.ErrUnauthorized)
}
