package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"liquidneuron/conversion"
	"liquidneuron/core"
	"liquidneuron/guard"
)

type conversionRequest struct {
	Caller         string `json:"caller"`
	AmountE8s      uint64 `json:"amount_e8s"`
	Subaccount     string `json:"subaccount,omitempty"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

func (req conversionRequest) idempotencyKey() uuid.UUID {
	if req.IdempotencyKey == "" {
		return uuid.New()
	}
	if key, err := uuid.Parse(req.IdempotencyKey); err == nil {
		return key
	}
	return uuid.New()
}

func (s *Server) handleIcpToNicp(w http.ResponseWriter, r *http.Request) {
	var req conversionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Caller == "" {
		writeError(w, http.StatusBadRequest, "missing caller")
		return
	}

	result, err := s.withPrincipalGuard(req.Caller, func(ctx context.Context) (any, error) {
		transferID, ntMinted, err := s.conv.IcpToNicp(ctx, req.idempotencyKey(), core.NewAccount(req.Caller), req.AmountE8s)
		if err != nil {
			return nil, err
		}
		return map[string]uint64{"transfer_id": transferID, "nicp_amount": ntMinted}, nil
	})
	s.writeConversionResult(w, result, err)
}

func (s *Server) handleNicpToIcp(w http.ResponseWriter, r *http.Request) {
	var req conversionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Caller == "" {
		writeError(w, http.StatusBadRequest, "missing caller")
		return
	}

	result, err := s.withPrincipalGuard(req.Caller, func(ctx context.Context) (any, error) {
		withdrawalID, tDue, err := s.conv.NicpToIcp(ctx, req.idempotencyKey(), core.NewAccount(req.Caller), req.AmountE8s)
		if err != nil {
			return nil, err
		}
		return map[string]uint64{"withdrawal_id": withdrawalID, "icp_amount": tDue}, nil
	})
	s.writeConversionResult(w, result, err)
}

type cancelWithdrawalRequest struct {
	Caller   string `json:"caller"`
	NeuronId uint64 `json:"neuron_id"`
}

func (s *Server) handleCancelWithdrawal(w http.ResponseWriter, r *http.Request) {
	var req cancelWithdrawalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Caller == "" {
		writeError(w, http.StatusBadRequest, "missing caller")
		return
	}

	result, err := s.withPrincipalGuard(req.Caller, func(ctx context.Context) (any, error) {
		if err := s.conv.CancelWithdrawal(ctx, core.NewAccount(req.Caller), core.NeuronId(req.NeuronId)); err != nil {
			return nil, err
		}
		return map[string]string{"status": "cancelled"}, nil
	})
	s.writeConversionResult(w, result, err)
}

type claimAirdropRequest struct {
	Caller string `json:"caller"`
}

func (s *Server) handleClaimAirdrop(w http.ResponseWriter, r *http.Request) {
	var req claimAirdropRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Caller == "" {
		writeError(w, http.StatusBadRequest, "missing caller")
		return
	}
	result, err := s.withPrincipalGuard(req.Caller, func(ctx context.Context) (any, error) {
		blockIndex, paid, err := s.claimer.ClaimAirdrop(ctx, req.Caller)
		if err != nil {
			return nil, err
		}
		return map[string]uint64{"block_index": blockIndex, "amount_e8s": uint64(paid)}, nil
	})
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, result)
	case errors.Is(err, conversion.ErrNothingToClaim),
		errors.Is(err, conversion.ErrAirdropScheduleNotDone),
		errors.Is(err, conversion.ErrStakeBelowClaimFloor),
		errors.Is(err, conversion.ErrClaimBelowFee):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, guard.ErrAlreadyProcessing), errors.Is(err, guard.ErrTooManyConcurrentRequests):
		writeError(w, http.StatusConflict, err.Error())
	default:
		writeError(w, http.StatusBadGateway, err.Error())
	}
}

type approveProposalRequest struct {
	Caller     string `json:"caller"`
	ProposalId uint64 `json:"proposal_id"`
}

func (s *Server) handleApproveProposal(w http.ResponseWriter, r *http.Request) {
	var req approveProposalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.prop.ApproveProposal(r.Context(), req.Caller, core.ProposalId(req.ProposalId)); err != nil {
		switch {
		case errors.Is(err, guard.ErrAlreadyProcessing):
			writeError(w, http.StatusConflict, err.Error())
		default:
			writeError(w, http.StatusBadRequest, err.Error())
		}
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "vote registered"})
}

// writeConversionResult maps a conversion/guard error to an HTTP status:
// input-shape errors are client errors, ledger/governance errors are
// upstream failures.
func (s *Server) writeConversionResult(w http.ResponseWriter, result any, err error) {
	if err == nil {
		writeJSON(w, http.StatusOK, result)
		return
	}
	switch {
	case errors.Is(err, guard.ErrAlreadyProcessing):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, guard.ErrTooManyConcurrentRequests):
		writeError(w, http.StatusTooManyRequests, err.Error())
	case errors.Is(err, conversion.ErrBelowMinimum):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, conversion.ErrNotFound), errors.Is(err, conversion.ErrNotCancellable):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, conversion.ErrBadCaller):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, conversion.ErrTooLate), errors.Is(err, conversion.ErrUnknownTimeLeft):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, conversion.ErrLedgerTransfer),
		errors.Is(err, conversion.ErrGetFullNeuron),
		errors.Is(err, conversion.ErrGovernance),
		errors.Is(err, conversion.ErrStopDissolvement),
		errors.Is(err, conversion.ErrMergeNeuron),
		errors.Is(err, conversion.ErrBadCommand):
		writeError(w, http.StatusBadGateway, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
