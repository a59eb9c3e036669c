package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/gagliardetto/solana-go"
	"github.com/go-chi/chi/v5"
	"github.com/mr-tron/base58"

	"github.com/TokenHarvester/investor-fee-distributor/pkg/distributor"
)

type errorResponse struct {
	Error string `json:"error"`
	Class string `json:"class"`
}

type initializeRequest struct {
	Vault                   string `json:"vault"`
	QuoteMint               string `json:"quote_mint"`
	CreatorWallet           string `json:"creator_wallet"`
	CreatorATA              string `json:"creator_ata"`
	TotalInvestorAllocation uint64 `json:"total_investor_allocation"`
	InvestorFeeShareBps     uint16 `json:"investor_fee_share_bps"`
	DailyCapLamports        uint64 `json:"daily_cap_lamports"`
	MinPayoutLamports       uint64 `json:"min_payout_lamports"`
	TotalInvestors          uint32 `json:"total_investors"`
}

type initializeResponse struct {
	Vault             string `json:"vault"`
	Treasury          string `json:"treasury"`
	TreasuryAuthority string `json:"treasury_authority"`
}

type investorEntryRequest struct {
	InvestorATA string `json:"investor_ata"`
	Stream      string `json:"stream"`
}

type distributeRequest struct {
	PageSize    int                    `json:"page_size"`
	StartCursor uint32                 `json:"start_cursor"`
	Investors   []investorEntryRequest `json:"investors"`
}

type distributeResponse struct {
	NewDay           bool   `json:"new_day"`
	ClaimedAmount    uint64 `json:"claimed_amount"`
	PageStart        uint32 `json:"page_start"`
	PageEnd          uint32 `json:"page_end"`
	InvestorsPaid    int    `json:"investors_paid"`
	TotalDistributed uint64 `json:"total_distributed"`
	RemainingDust    uint64 `json:"remaining_dust"`
	DayCompleted     bool   `json:"day_completed"`
	CreatorPayout    uint64 `json:"creator_payout"`
}

type progressResponse struct {
	Vault                          string `json:"vault"`
	LastDistributionTS             int64  `json:"last_distribution_ts"`
	CurrentDayClaimed              uint64 `json:"current_day_claimed"`
	CurrentDayDistributedInvestors uint64 `json:"current_day_distributed_investors"`
	CurrentDayDistributedCreator   uint64 `json:"current_day_distributed_creator"`
	CarryOverDust                  uint64 `json:"carry_over_dust"`
	PaginationCursor               uint32 `json:"pagination_cursor"`
	DayCompleted                   bool   `json:"day_completed"`
	TotalInvestors                 uint32 `json:"total_investors"`
}

func (s *Server) handleInitialize(w http.ResponseWriter, r *http.Request) {
	var req initializeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}

	params := distributor.InitializeParams{
		TotalInvestorAllocation: req.TotalInvestorAllocation,
		InvestorFeeShareBps:     req.InvestorFeeShareBps,
		DailyCapLamports:        req.DailyCapLamports,
		MinPayoutLamports:       req.MinPayoutLamports,
		TotalInvestors:          req.TotalInvestors,
	}
	for dst, field := range map[*solana.PublicKey]struct{ name, value string }{
		&params.Vault:         {"vault", req.Vault},
		&params.QuoteMint:     {"quote_mint", req.QuoteMint},
		&params.CreatorWallet: {"creator_wallet", req.CreatorWallet},
		&params.CreatorATA:    {"creator_ata", req.CreatorATA},
	} {
		key, err := parsePublicKey(field.value)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid %s: %w", field.name, err))
			return
		}
		*dst = key
	}

	policy, err := s.cfg.Engine.Initialize(r.Context(), params)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}

	writeJSON(s.log, w, http.StatusCreated, initializeResponse{
		Vault:             policy.Vault.String(),
		Treasury:          policy.Treasury.String(),
		TreasuryAuthority: policy.TreasuryAuthority.String(),
	})
}

func (s *Server) handleDistribute(w http.ResponseWriter, r *http.Request) {
	vault, err := parsePublicKey(chi.URLParam(r, "vault"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid vault: %w", err))
		return
	}

	var req distributeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}

	engineReq := distributor.DistributeRequest{
		PageSize:    req.PageSize,
		StartCursor: req.StartCursor,
		Investors:   make([]distributor.InvestorEntry, len(req.Investors)),
	}
	for i, entry := range req.Investors {
		ata, err := parsePublicKey(entry.InvestorATA)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid investor_ata at index %d: %w", i, err))
			return
		}
		stream, err := parsePublicKey(entry.Stream)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid stream at index %d: %w", i, err))
			return
		}
		engineReq.Investors[i] = distributor.InvestorEntry{InvestorATA: ata, Stream: stream}
	}

	result, err := s.cfg.Engine.Distribute(r.Context(), vault, engineReq)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}

	writeJSON(s.log, w, http.StatusOK, distributeResponse{
		NewDay:           result.NewDay,
		ClaimedAmount:    result.ClaimedAmount,
		PageStart:        result.PageStart,
		PageEnd:          result.PageEnd,
		InvestorsPaid:    result.InvestorsPaid,
		TotalDistributed: result.TotalDistributed,
		RemainingDust:    result.RemainingDust,
		DayCompleted:     result.DayCompleted,
		CreatorPayout:    result.CreatorPayout,
	})
}

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	vault, err := parsePublicKey(chi.URLParam(r, "vault"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid vault: %w", err))
		return
	}

	_, progress, err := s.cfg.Store.Scope(r.Context(), vault)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}

	writeJSON(s.log, w, http.StatusOK, progressResponse{
		Vault:                          progress.Vault.String(),
		LastDistributionTS:             progress.LastDistributionTS,
		CurrentDayClaimed:              progress.CurrentDayClaimed,
		CurrentDayDistributedInvestors: progress.CurrentDayDistributedInvestors,
		CurrentDayDistributedCreator:   progress.CurrentDayDistributedCreator,
		CarryOverDust:                  progress.CarryOverDust,
		PaginationCursor:               progress.PaginationCursor,
		DayCompleted:                   progress.DayCompleted,
		TotalInvestors:                 progress.TotalInvestors,
	})
}

// parsePublicKey decodes a base58 address and requires the 32-byte ed25519
// key length.
func parsePublicKey(value string) (solana.PublicKey, error) {
	raw, err := base58.Decode(value)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("invalid base58: %w", err)
	}
	if len(raw) != solana.PublicKeyLength {
		return solana.PublicKey{}, fmt.Errorf("expected %d-byte key, got %d", solana.PublicKeyLength, len(raw))
	}
	return solana.PublicKeyFromBytes(raw), nil
}

// writeEngineError maps the distributor error taxonomy onto HTTP statuses:
// validation 400, sequencing 409 (resubmit later / with fresh state),
// collaborator 502, arithmetic and unknown 500.
func (s *Server) writeEngineError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch distributor.Classify(err) {
	case distributor.ClassValidation:
		status = http.StatusBadRequest
	case distributor.ClassSequencing:
		status = http.StatusConflict
	case distributor.ClassCollaborator:
		status = http.StatusBadGateway
	}
	if errors.Is(err, distributor.ErrScopeNotFound) {
		status = http.StatusNotFound
	}
	if errors.Is(err, distributor.ErrScopeExists) {
		status = http.StatusConflict
	}
	s.writeErrorClass(w, status, err, string(distributor.Classify(err)))
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.writeErrorClass(w, status, err, string(distributor.ClassValidation))
}

func (s *Server) writeErrorClass(w http.ResponseWriter, status int, err error, class string) {
	writeJSON(s.log, w, status, errorResponse{Error: err.Error(), Class: class})
}
