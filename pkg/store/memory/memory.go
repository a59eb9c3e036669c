// Package memorystore is an in-memory implementation of the distributor's
// record store, mainly for tests. Records are held in their encoded
// fixed-width form so the codec path is identical to durable storage, and
// Update applies all mutations to a staged copy that only replaces the live
// state on success.
package memorystore

import (
	"context"
	"fmt"
	"sync"

	"github.com/gagliardetto/solana-go"

	"github.com/TokenHarvester/investor-fee-distributor/pkg/distributor"
)

type scopeRecord struct {
	policy   []byte
	progress []byte
}

// Store is a mutex-guarded record store keyed by vault.
type Store struct {
	mu       sync.Mutex
	scopes   map[solana.PublicKey]*scopeRecord
	balances map[solana.PublicKey]uint64
	// authorities registers the signing capability per treasury account.
	authorities map[solana.PublicKey]solana.PublicKey
}

func New() *Store {
	return &Store{
		scopes:      make(map[solana.PublicKey]*scopeRecord),
		balances:    make(map[solana.PublicKey]uint64),
		authorities: make(map[solana.PublicKey]solana.PublicKey),
	}
}

func (s *Store) CreateScope(ctx context.Context, policy distributor.Policy, progress distributor.Progress) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.scopes[policy.Vault]; ok {
		return distributor.ErrScopeExists
	}
	s.scopes[policy.Vault] = &scopeRecord{
		policy:   distributor.MarshalPolicy(policy),
		progress: distributor.MarshalProgress(progress),
	}
	s.balances[policy.Treasury] = 0
	s.authorities[policy.Treasury] = policy.TreasuryAuthority
	return nil
}

func (s *Store) Scope(ctx context.Context, vault solana.PublicKey) (distributor.Policy, distributor.Progress, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.decodeScope(vault)
}

func (s *Store) decodeScope(vault solana.PublicKey) (distributor.Policy, distributor.Progress, error) {
	rec, ok := s.scopes[vault]
	if !ok {
		return distributor.Policy{}, distributor.Progress{}, distributor.ErrScopeNotFound
	}
	policy, err := distributor.UnmarshalPolicy(rec.policy)
	if err != nil {
		return distributor.Policy{}, distributor.Progress{}, fmt.Errorf("failed to decode policy: %w", err)
	}
	progress, err := distributor.UnmarshalProgress(rec.progress)
	if err != nil {
		return distributor.Policy{}, distributor.Progress{}, fmt.Errorf("failed to decode progress: %w", err)
	}
	return policy, progress, nil
}

// Balance reports an account balance outside of any transaction.
func (s *Store) Balance(account solana.PublicKey) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.balances[account]
}

// Credit funds an account outside of any transaction, for test setup.
func (s *Store) Credit(account solana.PublicKey, amount uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.balances[account] += amount
}

func (s *Store) Update(ctx context.Context, vault solana.PublicKey, fn func(tx distributor.Tx, policy distributor.Policy, progress distributor.Progress) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	policy, progress, err := s.decodeScope(vault)
	if err != nil {
		return err
	}

	// Stage balance mutations; they replace the live map only on success.
	staged := make(map[solana.PublicKey]uint64, len(s.balances))
	for account, balance := range s.balances {
		staged[account] = balance
	}

	tx := &memTx{store: s, balances: staged}
	if err := fn(tx, policy, progress); err != nil {
		return err
	}

	s.balances = staged
	if tx.progressSet {
		s.scopes[vault].progress = distributor.MarshalProgress(tx.progress)
	}
	return nil
}

type memTx struct {
	store       *Store
	balances    map[solana.PublicKey]uint64
	progress    distributor.Progress
	progressSet bool
}

func (tx *memTx) Balance(account solana.PublicKey) (uint64, error) {
	return tx.balances[account], nil
}

func (tx *memTx) Credit(account solana.PublicKey, amount uint64) error {
	tx.balances[account] += amount
	return nil
}

func (tx *memTx) Transfer(from, authority, to solana.PublicKey, amount uint64) error {
	if registered, ok := tx.store.authorities[from]; ok && !registered.Equals(authority) {
		return distributor.ErrUnauthorized
	}
	if tx.balances[from] < amount {
		return distributor.ErrInsufficientFunds
	}
	tx.balances[from] -= amount
	tx.balances[to] += amount
	return nil
}

func (tx *memTx) SetProgress(progress distributor.Progress) error {
	tx.progress = progress
	tx.progressSet = true
	return nil
}
