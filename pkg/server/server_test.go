package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/TokenHarvester/investor-fee-distributor/pkg/distributor"
	"github.com/TokenHarvester/investor-fee-distributor/pkg/server"
	memorystore "github.com/TokenHarvester/investor-fee-distributor/pkg/store/memory"
	"github.com/TokenHarvester/investor-fee-distributor/pkg/testutil"
	"github.com/TokenHarvester/investor-fee-distributor/pkg/treasury"
)

type mockClaimer struct {
	ClaimFeesFunc func(ctx context.Context, vault solana.PublicKey) (uint64, error)
}

func (m *mockClaimer) ClaimFees(ctx context.Context, vault solana.PublicKey) (uint64, error) {
	return m.ClaimFeesFunc(ctx, vault)
}

type mockLockOracle struct {
	LockedAmountFunc func(ctx context.Context, stream solana.PublicKey, at time.Time) (uint64, error)
}

func (m *mockLockOracle) LockedAmount(ctx context.Context, stream solana.PublicKey, at time.Time) (uint64, error) {
	return m.LockedAmountFunc(ctx, stream, at)
}

func testKey(tag string) solana.PublicKey {
	var b [32]byte
	copy(b[:], tag)
	return solana.PublicKeyFromBytes(b[:])
}

type serverFixture struct {
	handler http.Handler
	store   *memorystore.Store
	clock   *clockwork.FakeClock
	vault   solana.PublicKey
}

func newServerFixture(t *testing.T, cfgEdit func(cfg *server.Config)) *serverFixture {
	t.Helper()

	f := &serverFixture{
		store: memorystore.New(),
		clock: clockwork.NewFakeClockAt(time.Unix(1_750_000_000, 0)),
		vault: testKey("vault-1"),
	}

	transfers, err := treasury.NewExecutor(treasury.Config{
		Logger:    testutil.NewLogger(),
		ProgramID: testKey("program"),
	})
	require.NoError(t, err)

	engine, err := distributor.New(distributor.Config{
		Logger: testutil.NewLogger(),
		Clock:  f.clock,
		Store:  f.store,
		Claimer: &mockClaimer{
			ClaimFeesFunc: func(ctx context.Context, vault solana.PublicKey) (uint64, error) {
				return 100_000, nil
			},
		},
		LockOracle: &mockLockOracle{
			LockedAmountFunc: func(ctx context.Context, stream solana.PublicKey, at time.Time) (uint64, error) {
				return 250_000, nil
			},
		},
		Transfers: transfers,
	})
	require.NoError(t, err)

	cfg := server.Config{
		Logger:     testutil.NewLogger(),
		Engine:     engine,
		Store:      f.store,
		ListenAddr: "127.0.0.1:0",
	}
	if cfgEdit != nil {
		cfgEdit(&cfg)
	}

	srv, err := server.New(cfg)
	require.NoError(t, err)
	f.handler = srv.Handler()
	return f
}

func (f *serverFixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func (f *serverFixture) initScope(t *testing.T, totalInvestors uint32) {
	t.Helper()
	rec := f.do(t, http.MethodPost, "/v1/scopes", map[string]any{
		"vault":                     f.vault.String(),
		"quote_mint":                testKey("quote-mint").String(),
		"creator_wallet":            testKey("creator").String(),
		"creator_ata":               testKey("creator-ata").String(),
		"total_investor_allocation": 1_000_000,
		"investor_fee_share_bps":    8000,
		"min_payout_lamports":       1000,
		"total_investors":           totalInvestors,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func investorsPayload(n int) []map[string]string {
	entries := make([]map[string]string, n)
	for i := range n {
		entries[i] = map[string]string{
			"investor_ata": testKey(fmt.Sprintf("investor-ata-%d", i)).String(),
			"stream":       testKey(fmt.Sprintf("stream-%d", i)).String(),
		}
	}
	return entries
}

func TestServer_Probes(t *testing.T) {
	t.Parallel()

	f := newServerFixture(t, nil)

	rec := f.do(t, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodGet, "/readyz", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodGet, "/version", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_InitializeAndDistribute(t *testing.T) {
	t.Parallel()

	f := newServerFixture(t, nil)
	f.initScope(t, 2)

	rec := f.do(t, http.MethodPost, "/v1/scopes/"+f.vault.String()+"/distribute", map[string]any{
		"page_size":    2,
		"start_cursor": 0,
		"investors":    investorsPayload(2),
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var dist struct {
		NewDay           bool   `json:"new_day"`
		ClaimedAmount    uint64 `json:"claimed_amount"`
		TotalDistributed uint64 `json:"total_distributed"`
		DayCompleted     bool   `json:"day_completed"`
		CreatorPayout    uint64 `json:"creator_payout"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &dist))
	require.True(t, dist.NewDay)
	require.Equal(t, uint64(100_000), dist.ClaimedAmount)
	require.True(t, dist.DayCompleted)

	// Both investors hold 250k of the 1M baseline: 50% locked, capped by
	// the 80% share, so half the claim goes to investors.
	require.Equal(t, uint64(50_000), dist.TotalDistributed)
	require.Equal(t, uint64(50_000), dist.CreatorPayout)

	rec = f.do(t, http.MethodGet, "/v1/scopes/"+f.vault.String()+"/progress", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var progress struct {
		PaginationCursor uint32 `json:"pagination_cursor"`
		DayCompleted     bool   `json:"day_completed"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &progress))
	require.Equal(t, uint32(2), progress.PaginationCursor)
	require.True(t, progress.DayCompleted)
}

func TestServer_ErrorMapping(t *testing.T) {
	t.Parallel()

	f := newServerFixture(t, nil)
	f.initScope(t, 2)

	t.Run("bad vault parameter", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, "/v1/scopes/not-base58!/progress", nil)
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unknown scope returns not found", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, "/v1/scopes/"+testKey("missing").String()+"/progress", nil)
		require.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("invalid page size", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/v1/scopes/"+f.vault.String()+"/distribute", map[string]any{
			"page_size": 51,
		})
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("duplicate scope", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/v1/scopes", map[string]any{
			"vault":          f.vault.String(),
			"quote_mint":     testKey("quote-mint").String(),
			"creator_wallet": testKey("creator").String(),
			"creator_ata":    testKey("creator-ata").String(),
		})
		require.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())
	})

	t.Run("completed day conflicts", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/v1/scopes/"+f.vault.String()+"/distribute", map[string]any{
			"page_size":    2,
			"start_cursor": 0,
			"investors":    investorsPayload(2),
		})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		rec = f.do(t, http.MethodPost, "/v1/scopes/"+f.vault.String()+"/distribute", map[string]any{
			"page_size":    2,
			"start_cursor": 0,
			"investors":    investorsPayload(2),
		})
		require.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())

		var errResp struct {
			Class string `json:"class"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &errResp))
		require.Equal(t, string(distributor.ClassSequencing), errResp.Class)
	})
}

func TestServer_RateLimit(t *testing.T) {
	t.Parallel()

	f := newServerFixture(t, func(cfg *server.Config) {
		cfg.RateLimit = rate.Every(time.Hour)
		cfg.RateBurst = 1
	})
	f.initScope(t, 2)

	// The burst is consumed by the initialize call above; the next v1 call
	// from the same client is throttled.
	rec := f.do(t, http.MethodGet, "/v1/scopes/"+f.vault.String()+"/progress", nil)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.NotEmpty(t, rec.Header().Get("Retry-After"))

	// Probes stay exempt from the limiter.
	rec = f.do(t, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}
